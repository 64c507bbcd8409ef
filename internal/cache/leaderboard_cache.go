package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"brainstorm/internal/model"
)

// LeaderboardCache handles Redis ZSET operations for the global metric
// leaderboards. One sorted set per metric, members are user ids.
//
// Increments follow store increments, so a member's score never exceeds its
// stored value. Sync writes stored values for the store's top users and
// marks the set; a missing mark means Redis lost the set and it must be
// synced again before its top can be trusted.
type LeaderboardCache interface {
	Incr(ctx context.Context, metric model.LeaderboardMetric, userID string, by int) error
	GetTop(ctx context.Context, metric model.LeaderboardMetric, limit int) ([]Score, error)
	GetRank(ctx context.Context, metric model.LeaderboardMetric, userID string) (int64, error)
	Synced(ctx context.Context, metric model.LeaderboardMetric) (bool, error)
	Sync(ctx context.Context, metric model.LeaderboardMetric, scores []Score) error
}

// Score is a single member of a metric leaderboard
type Score struct {
	UserID string
	Value  int
	Rank   int
}

type leaderboardCache struct {
	client *redis.Client
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{
		client: client,
	}
}

func (c *leaderboardCache) key(metric model.LeaderboardMetric) string {
	return fmt.Sprintf("leaderboard:%s", metric)
}

func (c *leaderboardCache) syncedKey(metric model.LeaderboardMetric) string {
	return fmt.Sprintf("leaderboard:%s:synced", metric)
}

func (c *leaderboardCache) Incr(ctx context.Context, metric model.LeaderboardMetric, userID string, by int) error {
	return c.client.ZIncrBy(ctx, c.key(metric), float64(by), userID).Err()
}

func (c *leaderboardCache) GetTop(ctx context.Context, metric model.LeaderboardMetric, limit int) ([]Score, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(metric), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	scores := make([]Score, 0, len(results))
	for i, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		scores = append(scores, Score{
			UserID: member,
			Value:  int(z.Score),
			Rank:   i + 1,
		})
	}
	return scores, nil
}

// GetRank returns the 1-indexed rank of userID, or -1 if unranked
func (c *leaderboardCache) GetRank(ctx context.Context, metric model.LeaderboardMetric, userID string) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, c.key(metric), userID).Result()
	if errors.Is(err, redis.Nil) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return rank + 1, nil
}

func (c *leaderboardCache) Synced(ctx context.Context, metric model.LeaderboardMetric) (bool, error) {
	n, err := c.client.Exists(ctx, c.syncedKey(metric)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Sync overwrites the scores of the given members and then sets the mark.
// Members with a zero value are not added.
func (c *leaderboardCache) Sync(ctx context.Context, metric model.LeaderboardMetric, scores []Score) error {
	members := make([]redis.Z, 0, len(scores))
	for _, sc := range scores {
		if sc.Value > 0 {
			members = append(members, redis.Z{Score: float64(sc.Value), Member: sc.UserID})
		}
	}
	if len(members) > 0 {
		if err := c.client.ZAdd(ctx, c.key(metric), members...).Err(); err != nil {
			return err
		}
	}
	return c.client.Set(ctx, c.syncedKey(metric), "1", 0).Err()
}
