package service

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"brainstorm/internal/cache"
	"brainstorm/internal/model"
	"brainstorm/internal/repository"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// UserService serves profiles and global metric leaderboards
type UserService struct {
	users  repository.UserRepo
	boards cache.LeaderboardCache
	logger *zap.Logger
}

// NewUserService creates a new user service. boards may be nil.
func NewUserService(users repository.UserRepo, boards cache.LeaderboardCache, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		boards: boards,
		logger: logger,
	}
}

// Profile is a user with their cached leaderboard positions
type Profile struct {
	*model.User
	Ranks map[model.LeaderboardMetric]int64 `json:"posicoes,omitempty"`
}

// Profile returns the user with id
func (s *UserService) Profile(ctx context.Context, id string) (*Profile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	profile := &Profile{User: user}
	if s.boards == nil {
		return profile, nil
	}
	profile.Ranks = make(map[model.LeaderboardMetric]int64)
	for _, m := range []model.LeaderboardMetric{model.MetricIdeas, model.MetricSessions, model.MetricCreated} {
		rank, err := s.boards.GetRank(ctx, m, id)
		if err != nil {
			s.logger.Warn("leaderboard rank read failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if rank > 0 {
			profile.Ranks[m] = rank
		}
	}
	return profile, nil
}

// Leaderboard ranks users by metric. The first page is served from Redis
// when the set is synced and holds a full page; everything else goes to the
// store.
func (s *UserService) Leaderboard(ctx context.Context, metric model.LeaderboardMetric, page, limit int) ([]model.LeaderboardEntry, error) {
	if metric == "" {
		metric = model.MetricIdeas
	}
	if !metric.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"metrica": "use ideias, sessoes ou criadas"}}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	if page == 1 && s.boards != nil {
		entries, err := s.cachedPage(ctx, metric, limit)
		if err != nil {
			s.logger.Warn("leaderboard cache read failed", zap.String("metric", string(metric)), zap.Error(err))
		} else if len(entries) == limit {
			return entries, nil
		}
	}

	entries, err := s.users.Leaderboard(ctx, metric, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return entries, nil
}

// cachedPage reads the top of the metric's sorted set, syncing it from the
// store first when Redis has lost it.
func (s *UserService) cachedPage(ctx context.Context, metric model.LeaderboardMetric, limit int) ([]model.LeaderboardEntry, error) {
	synced, err := s.boards.Synced(ctx, metric)
	if err != nil {
		return nil, err
	}
	if !synced {
		if err := s.syncBoard(ctx, metric); err != nil {
			return nil, err
		}
	}
	return s.cachedTop(ctx, metric, limit)
}

// syncBoard writes the store's top values into Redis. Pages are capped at
// maxLeaderboardLimit, so the cached top of any page is exact afterwards.
func (s *UserService) syncBoard(ctx context.Context, metric model.LeaderboardMetric) error {
	top, err := s.users.Leaderboard(ctx, metric, 0, maxLeaderboardLimit)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	scores := make([]cache.Score, 0, len(top))
	for _, e := range top {
		scores = append(scores, cache.Score{UserID: e.UserID, Value: e.Value, Rank: e.Rank})
	}
	if err := s.boards.Sync(ctx, metric, scores); err != nil {
		return err
	}
	s.logger.Info("leaderboard synced from store",
		zap.String("metric", string(metric)),
		zap.Int("members", len(scores)))
	return nil
}

func (s *UserService) cachedTop(ctx context.Context, metric model.LeaderboardMetric, limit int) ([]model.LeaderboardEntry, error) {
	scores, err := s.boards.GetTop(ctx, metric, limit)
	if err != nil || len(scores) == 0 {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(scores))
	for _, sc := range scores {
		if oid, err := primitive.ObjectIDFromHex(sc.UserID); err == nil {
			ids = append(ids, oid)
		}
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	nicks := make(map[string]string, len(users))
	for _, u := range users {
		nicks[u.ID.Hex()] = u.DisplayName()
	}

	entries := make([]model.LeaderboardEntry, 0, len(scores))
	for _, sc := range scores {
		entries = append(entries, model.LeaderboardEntry{
			UserID: sc.UserID,
			Nick:   nicks[sc.UserID],
			Value:  sc.Value,
			Rank:   sc.Rank,
		})
	}
	return entries, nil
}
