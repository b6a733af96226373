package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smallbiznis-tokenomics/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

// Cache stores pages of the top users list.
type Cache interface {
	GetTop(ctx context.Context, limit int) ([]*TopUser, bool, error)
	SetTop(ctx context.Context, limit int, users []*TopUser) error
	Invalidate(ctx context.Context) error
}

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) Cache {
	return &redisCache{rdb: rdb, ttl: ttl}
}

func (c *redisCache) GetTop(ctx context.Context, limit int) ([]*TopUser, bool, error) {
	raw, err := c.rdb.Get(ctx, rediskey.BuildLeaderboardTopKey(TypeGlobal, PeriodGlobal, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var users []*TopUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, false, fmt.Errorf("decode cached leaderboard: %w", err)
	}
	return users, true, nil
}

func (c *redisCache) SetTop(ctx context.Context, limit int, users []*TopUser) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, rediskey.BuildLeaderboardTopKey(TypeGlobal, PeriodGlobal, limit), raw, c.ttl).Err()
}

// Invalidate drops every cached page of the global leaderboard.
func (c *redisCache) Invalidate(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, rediskey.BuildLeaderboardPattern(TypeGlobal, PeriodGlobal), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
