package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"brainstorm/internal/model"
)

const resultTTL = 24 * time.Hour

// ErrMiss is returned when a key is not cached
var ErrMiss = errors.New("cache miss")

// ResultCache keeps the outcome of completed sessions. Completed sessions
// are immutable, so entries never need invalidation.
type ResultCache interface {
	Set(ctx context.Context, result *model.SessionResult) error
	Get(ctx context.Context, sessionID string) (*model.SessionResult, error)
}

type resultCache struct {
	client *redis.Client
}

func NewResultCache(client *redis.Client) ResultCache {
	return &resultCache{
		client: client,
	}
}

func resultKey(sessionID string) string {
	return "session:" + sessionID + ":result"
}

func (c *resultCache) Set(ctx context.Context, result *model.SessionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, resultKey(result.SessionID), string(data), resultTTL).Err()
}

func (c *resultCache) Get(ctx context.Context, sessionID string) (*model.SessionResult, error) {
	data, err := c.client.Get(ctx, resultKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	var result model.SessionResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
