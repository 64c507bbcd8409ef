package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"brainstorm/internal/model"
)

// Submit records a contribution for the current level of an active session
func (s *SessionService) Submit(ctx context.Context, actor Actor, sessionID string, level int, text string) (*model.Idea, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	st, ok := s.registry.Snapshot(sessionID)
	if !ok || st.Status != model.SessionActive || st.Level < 1 {
		return nil, ErrSessionNotRunning
	}
	if level != st.Level {
		return nil, ErrLevelMismatch
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > model.MaxIdeaLength {
		return nil, ErrInvalidContribution
	}

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(actor.UserID) && !session.IsHost(actor.UserID) {
		return nil, ErrNotParticipant
	}

	idea := model.Idea{
		Text:      text,
		AuthorID:  actor.UserID,
		Level:     level,
		Timestamp: s.now(),
	}
	if err := s.sessions.AppendIdea(ctx, sessionID, idea); err != nil {
		return nil, fmt.Errorf("failed to store idea: %w", err)
	}

	ranking, _ := s.registry.AddWord(sessionID, actor.UserID.Hex(), level, text)
	s.recordContribution(ctx, actor)

	if actor.ConnID != "" {
		s.bus.EmitTo(actor.ConnID, model.EvtWordAccepted, model.WordAcceptedPayload{
			Word:  text,
			Level: level,
		})
	}
	s.bus.Broadcast(sessionID, model.EvtRankingUpdated, model.RankingPayload{Ranking: ranking})
	s.logger.Debug("idea accepted",
		zap.String("session_id", sessionID),
		zap.String("user_id", actor.UserID.Hex()),
		zap.Int("level", level))
	return &idea, nil
}

// SubmitBatch records several contributions for the current level, in
// order. Blank words are skipped and the rest are length-checked before any
// is stored. On error the ideas accepted so far are returned with it.
func (s *SessionService) SubmitBatch(ctx context.Context, actor Actor, sessionID string, level int, words []string) ([]model.Idea, error) {
	texts := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if utf8.RuneCountInString(w) > model.MaxIdeaLength {
			return nil, ErrInvalidContribution
		}
		texts = append(texts, w)
	}
	if len(texts) == 0 {
		return nil, ErrInvalidContribution
	}
	if len(texts) > model.MaxBatchWords {
		return nil, &ValidationError{Fields: map[string]string{
			"palavras": fmt.Sprintf("máximo %d palavras por envio", model.MaxBatchWords),
		}}
	}

	ideas := make([]model.Idea, 0, len(texts))
	for _, text := range texts {
		idea, err := s.Submit(ctx, actor, sessionID, level, text)
		if err != nil {
			// ideas already accepted stay stored
			return ideas, err
		}
		ideas = append(ideas, *idea)
	}
	return ideas, nil
}

// recordContribution bumps the contributor's metric. Best-effort: the idea
// is already stored.
func (s *SessionService) recordContribution(ctx context.Context, actor Actor) {
	if err := s.users.IncrementIdeas(ctx, actor.UserID, 1); err != nil {
		s.logger.Warn("idea metric update failed", zap.String("user_id", actor.UserID.Hex()), zap.Error(err))
	}
	if s.boards != nil {
		if err := s.boards.Incr(ctx, model.MetricIdeas, actor.UserID.Hex(), 1); err != nil {
			s.logger.Warn("leaderboard update failed", zap.String("user_id", actor.UserID.Hex()), zap.Error(err))
		}
	}
}
