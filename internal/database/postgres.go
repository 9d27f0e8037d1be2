package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/edukit/assignio-backend/internal/config"
)

// NewPostgresPool creates a PostgreSQL connection pool without requiring the
// database to be reachable yet: pgxpool connects lazily and the readiness
// gate owns connectivity. An initial ping is attempted only to log the
// starting condition.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxDBConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("PostgreSQL not reachable yet, gate will probe")
	} else {
		log.Info().
			Int32("max_conns", cfg.MaxDBConns).
			Msg("PostgreSQL connected")
	}

	return pool, nil
}
