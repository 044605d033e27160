// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mysurvey/mysurvey/internal/auth/postgres"
	"github.com/mysurvey/mysurvey/internal/config"
	"github.com/mysurvey/mysurvey/internal/httpapi"
	"github.com/mysurvey/mysurvey/internal/observability"
	"github.com/mysurvey/mysurvey/internal/ratelimit"
)

// HTTP server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
)

func newServeCmd(g *globalFlags, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the authentication API server. The metrics and health endpoints
are served on a separate address. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, deps, nil)
		},
	}
}

// runServe wires the service together and blocks until ctx is done or a
// server fails. If ready is non-nil it receives the API address once listening.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Deps, ready chan<- string) error {
	logger.InfoContext(ctx, "starting mysurvey",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.HTTP.MetricsAddr,
		"log_level", cfg.Log.Level,
	)

	pool, err := deps.PoolFactory(ctx, poolConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	obs := observability.NewServer(cfg.HTTP.MetricsAddr, pool.Ping, logger)

	svc, err := newAuthService(cfg, postgres.NewAccountRepository(pool), logger, obs.Metrics())
	if err != nil {
		return err
	}

	var limiter httpapi.Limiter
	if cfg.RateLimit.Rate > 0 {
		rl := ratelimit.New(ratelimit.Config{Burst: cfg.RateLimit.Burst, Rate: cfg.RateLimit.Rate}, obs.Registry())
		defer rl.Close()
		limiter = rl
	}

	api, err := httpapi.NewServer(svc, httpapi.Options{
		Logger:      logger,
		Limiter:     limiter,
		Metrics:     obs.Metrics(),
		Readiness:   pool.Ping,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		TrustProxy:  cfg.HTTP.TrustProxy,
	})
	if err != nil {
		return err
	}

	var obsErrCh <-chan error
	if cfg.HTTP.MetricsAddr != "" {
		obsErrCh, err = obs.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		defer stopWithTimeout(logger, "observability server", cfg.HTTP.ShutdownTimeout, obs.Stop)
	}

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           api,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrCh <- serveErr
		}
	}()

	addr := listener.Addr().String()
	logger.InfoContext(ctx, "api server listening", "addr", addr)
	if ready != nil {
		ready <- addr
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-apiErrCh:
		serveErr = oops.Code("SERVE_FAILED").With("server", "api").Wrap(err)
	case err := <-obsErrCh:
		serveErr = oops.Code("SERVE_FAILED").With("server", "observability").Wrap(err)
	}

	// In-flight requests get the grace period to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server did not shut down cleanly", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

func stopWithTimeout(logger *slog.Logger, name string, timeout time.Duration, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping "+name, "error", err)
	}
}
