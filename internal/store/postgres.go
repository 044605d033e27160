// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

// Package store provides PostgreSQL connection management and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection defaults.
const (
	DefaultMaxConns       = 10
	DefaultConnectRetries = 5
	DefaultConnectBackoff = 500 * time.Millisecond
	maxConnectBackoff     = 10 * time.Second
)

// PoolConfig configures the connection pool.
type PoolConfig struct {
	URL            string
	MaxConns       int32
	ConnectRetries uint64
	ConnectBackoff time.Duration
}

type pinger interface {
	Ping(ctx context.Context) error
}

// NewPool opens a pool and waits until the database answers a ping, retrying
// with exponential backoff while it starts up.
func NewPool(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	} else {
		pcfg.MaxConns = DefaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, connectBackoff(cfg), logger); err != nil {
		pool.Close()
		return nil, err
	}
	logger.InfoContext(ctx, "connected to database",
		"host", pcfg.ConnConfig.Host,
		"database", pcfg.ConnConfig.Database,
		"max_conns", pcfg.MaxConns,
	)
	return pool, nil
}

func connectBackoff(cfg PoolConfig) retry.Backoff {
	base := cfg.ConnectBackoff
	if base <= 0 {
		base = DefaultConnectBackoff
	}
	retries := cfg.ConnectRetries
	if retries == 0 {
		retries = DefaultConnectRetries
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxConnectBackoff, b)
	return retry.WithMaxRetries(retries, b)
}

func waitForDatabase(ctx context.Context, p pinger, backoff retry.Backoff, logger *slog.Logger) error {
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
