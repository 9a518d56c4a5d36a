package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"helios.network/testnetapi/internal/logger"
)

// pageCache memoizes leaderboard pages in redis. A nil client disables it.
type pageCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func (c *pageCache) get(ctx context.Context, key string, dst any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.WarnCtx(ctx, "leaderboard cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (c *pageCache) set(ctx context.Context, key string, v any) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.WarnCtx(ctx, "leaderboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
