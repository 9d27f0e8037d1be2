package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/assignio-backend/internal/config"
)

// NewRedisClient creates a Redis client. Redis is the local cache
// collaborator: if it is down the application degrades to uncached
// operation, so an unreachable instance is logged, not fatal.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opt.Addr).Msg("Redis not reachable yet")
	} else {
		log.Info().
			Str("addr", opt.Addr).
			Int("db", opt.DB).
			Msg("Redis connected")
	}

	return rdb, nil
}
