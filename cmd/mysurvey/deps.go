// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/mysurvey/mysurvey/internal/auth"
	"github.com/mysurvey/mysurvey/internal/auth/postgres"
	"github.com/mysurvey/mysurvey/internal/config"
	"github.com/mysurvey/mysurvey/internal/store"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string, logger *slog.Logger) (Migrator, error)

	// PoolFactory opens the database pool.
	// Default: store.NewPool
	PoolFactory func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error)

	// AccountAdminFactory builds the service used by account commands.
	// The returned func releases its resources.
	// Default: a postgres-backed auth.Service
	AccountAdminFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (AccountAdmin, func(), error)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// AccountAdmin wraps the methods used from auth.Service by account commands.
type AccountAdmin interface {
	FindByEmail(ctx context.Context, email string) (*auth.Profile, error)
	SetActive(ctx context.Context, accountID ulid.ULID, active bool) (*auth.Profile, error)
	Unlock(ctx context.Context, accountID ulid.ULID) error
}

func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string, logger *slog.Logger) (Migrator, error) {
			return store.NewMigrator(databaseURL, logger)
		}
	}
	if out.PoolFactory == nil {
		out.PoolFactory = store.NewPool
	}
	if out.AccountAdminFactory == nil {
		out.AccountAdminFactory = out.defaultAccountAdmin
	}
	return out
}

func (d *Deps) defaultAccountAdmin(ctx context.Context, cfg *config.Config, logger *slog.Logger) (AccountAdmin, func(), error) {
	pool, err := d.PoolFactory(ctx, poolConfig(cfg), logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := newAuthService(cfg, postgres.NewAccountRepository(pool), logger, nil)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc, pool.Close, nil
}

func poolConfig(cfg *config.Config) store.PoolConfig {
	return store.PoolConfig{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectRetries: cfg.Database.ConnectRetries,
		ConnectBackoff: cfg.Database.ConnectBackoff,
	}
}

// newAuthService composes the auth service from configuration.
// recorder may be nil.
func newAuthService(cfg *config.Config, accounts auth.AccountRepository, logger *slog.Logger, recorder auth.Recorder) (*auth.Service, error) {
	issuer, err := auth.NewTokenIssuer(cfg.TokenConfig())
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithLockoutPolicy(cfg.LockoutPolicy()),
		auth.WithResetTokenTTL(cfg.Auth.ResetTokenTTL),
	}
	if recorder != nil {
		opts = append(opts, auth.WithRecorder(recorder))
	}
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	logger.Debug("auth service configured",
		"bcrypt_cost", hasher.Cost(),
		"lockout_threshold", cfg.Auth.LockoutThreshold)
	return auth.NewService(accounts, hasher, issuer, opts...)
}
