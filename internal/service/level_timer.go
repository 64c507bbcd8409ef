package service

import (
	"time"

	"go.uber.org/zap"

	"brainstorm/internal/model"
)

// scheduleTick arms the next countdown step for the run of sessionID
// started at epoch, replacing any pending one.
func (s *SessionService) scheduleTick(sessionID string, epoch uint64, delay time.Duration) {
	s.sched.Schedule(sessionID, delay, func() {
		s.tick(sessionID, epoch)
	})
}

// tick runs one countdown step. It stops silently when the runtime entry is
// gone, the session is no longer active, or it was restarted after this step
// was armed, so a pause or conclusion racing with a pending step costs at
// most one wasted wake-up.
func (s *SessionService) tick(sessionID string, epoch uint64) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	tk, ok := s.registry.Tick(sessionID, epoch)
	if !ok {
		return
	}

	s.bus.Broadcast(sessionID, model.EvtTimeUpdated, model.TimeUpdatedPayload{
		Level:     tk.Level,
		Remaining: tk.Remaining,
	})
	if tk.Remaining > 0 {
		s.scheduleTick(sessionID, epoch, time.Second)
		return
	}

	s.levelEnded(sessionID, tk.Level)

	next, ok := model.NextLevel(tk.Levels, tk.Level)
	if !ok {
		ctx, cancel := detached()
		defer cancel()
		if _, err := s.conclude(ctx, sessionID, "A sessão foi concluída automaticamente"); err != nil {
			s.logger.Error("automatic conclusion failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return
	}

	prev, ok := s.registry.Advance(sessionID, next)
	if !ok {
		return
	}
	s.bus.Broadcast(sessionID, model.EvtLevelAdvanced, model.LevelAdvancedPayload{
		Previous:  prev,
		Current:   next.Order,
		Remaining: next.Seconds,
	})
	s.logger.Info("level advanced",
		zap.String("session_id", sessionID),
		zap.Int("level", next.Order))

	// the inter-level pause is part of the first step of the new level
	s.scheduleTick(sessionID, epoch, s.levelGap+time.Second)
}

// levelEnded publishes the digest of the words submitted during a finished
// level. The summarizer is only called once, at conclusion.
func (s *SessionService) levelEnded(sessionID string, level int) {
	words := s.registry.LevelWords(sessionID, level)
	s.bus.Broadcast(sessionID, model.EvtLevelResult, model.LevelResultPayload{
		Level:     level,
		Text:      levelDigest(level, words),
		Processed: len(words),
	})
	s.logger.Info("level ended",
		zap.String("session_id", sessionID),
		zap.Int("level", level),
		zap.Int("words", len(words)))
}
