package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"brainstorm/internal/model"
	"brainstorm/internal/repository"
)

// conclude runs the conclusion pipeline. The caller holds the session lock.
// The summary is stored before the status flips to completed, so a failure
// before that point leaves the session concludable again.
func (s *SessionService) conclude(ctx context.Context, sessionID, message string) (res *model.SessionResult, err error) {
	s.sched.Cancel(sessionID)
	defer func() {
		// a failed attempt leaves a running session running
		if err != nil && !errors.Is(err, ErrAlreadyConcluded) {
			if st, ok := s.registry.Snapshot(sessionID); ok && st.Status == model.SessionActive {
				epoch, _ := s.registry.Epoch(sessionID)
				s.scheduleTick(sessionID, epoch, time.Second)
			}
		}
	}()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionCompleted {
		return nil, ErrAlreadyConcluded
	}

	ideas := sortedIdeas(session.Ideas)
	summary := s.summarize(sessionID, session.Theme, ideas)

	aiResult := model.AIResult{Text: summary, Timestamp: s.now()}
	if err := s.sessions.AppendAIResult(ctx, sessionID, aiResult); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyConcluded
		}
		return nil, fmt.Errorf("failed to store summary: %w", err)
	}
	session.AIResults = append(session.AIResults, aiResult)

	ok, err := s.sessions.TransitionStatus(ctx, sessionID, []model.SessionStatus{
		model.SessionWaiting, model.SessionActive, model.SessionPaused,
	}, model.SessionCompleted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyConcluded
	}
	session.Status = model.SessionCompleted

	s.recordParticipation(ctx, session)

	res = &model.SessionResult{
		SessionID: sessionID,
		Theme:     session.Theme,
		Result:    summary,
		Ideas:     ideas,
	}
	s.cacheResult(ctx, res)

	s.bus.Broadcast(sessionID, model.EvtSessionConcluded, model.ConcludedPayload{
		Message: message,
		Status:  model.SessionCompleted,
		Result:  summary,
		Ideas:   ideas,
	})

	s.registry.Delete(sessionID)
	s.sched.Cancel(sessionID)

	s.logger.Info("session concluded",
		zap.String("session_id", sessionID),
		zap.Int("ideas", len(ideas)),
		zap.Int("participants", len(session.Participants)))
	return res, nil
}

// summarize never fails: summarizer errors degrade to the fallback text
func (s *SessionService) summarize(sessionID, theme string, ideas []model.Idea) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.summaryTTL)
	defer cancel()

	texts := make([]string, 0, len(ideas))
	for _, idea := range ideas {
		texts = append(texts, idea.Text)
	}
	summary, err := s.summarizer.Summarize(ctx, theme, texts)
	if err != nil || summary == "" {
		s.logger.Warn("summarizer unavailable, using fallback",
			zap.String("session_id", sessionID), zap.Error(err))
		return model.FallbackSummary
	}
	return summary
}

func (s *SessionService) recordParticipation(ctx context.Context, session *model.Session) {
	if _, err := s.users.RecordParticipation(ctx, session.ID, session.Participants); err != nil {
		s.logger.Warn("participation metric update failed",
			zap.String("session_id", session.ID.Hex()), zap.Error(err))
	}
	if err := s.users.IncrementCreated(ctx, session.HostID); err != nil {
		s.logger.Warn("created metric update failed",
			zap.String("session_id", session.ID.Hex()), zap.Error(err))
	}
	if s.boards == nil {
		return
	}
	for _, p := range session.Participants {
		if err := s.boards.Incr(ctx, model.MetricSessions, p.Hex(), 1); err != nil {
			s.logger.Warn("leaderboard update failed", zap.String("user_id", p.Hex()), zap.Error(err))
			return
		}
	}
	if err := s.boards.Incr(ctx, model.MetricCreated, session.HostID.Hex(), 1); err != nil {
		s.logger.Warn("leaderboard update failed", zap.String("user_id", session.HostID.Hex()), zap.Error(err))
	}
}

func (s *SessionService) cacheResult(ctx context.Context, res *model.SessionResult) {
	if s.results == nil {
		return
	}
	if err := s.results.Set(ctx, res); err != nil {
		s.logger.Warn("result cache write failed", zap.String("session_id", res.SessionID), zap.Error(err))
	}
}

func resultOf(session *model.Session) *model.SessionResult {
	return &model.SessionResult{
		SessionID: session.ID.Hex(),
		Theme:     session.Theme,
		Result:    session.LatestAIResult(),
		Ideas:     sortedIdeas(session.Ideas),
	}
}

// sortedIdeas orders ideas by submission time, keeping store order on ties
func sortedIdeas(ideas []model.Idea) []model.Idea {
	out := append([]model.Idea{}, ideas...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
