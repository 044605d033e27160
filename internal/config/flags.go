// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/mysurvey/mysurvey/internal/auth"
	"github.com/mysurvey/mysurvey/internal/store"
)

// Default values for serve flags.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultMetricsAddr     = "127.0.0.1:9100"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxConns        = store.DefaultMaxConns
	DefaultConnectRetries  = store.DefaultConnectRetries
	DefaultConnectBackoff  = store.DefaultConnectBackoff
	DefaultRateLimit       = 100.0 / 60.0 // 100 requests per minute
	DefaultRateBurst       = 100
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// flagKeys maps flag names to config keys. Secrets have no flags; they come
// from the environment or the config file.
var flagKeys = map[string]string{
	"http-addr":          "http.addr",
	"metrics-addr":       "http.metrics_addr",
	"shutdown-timeout":   "http.shutdown_timeout",
	"cors-origins":       "http.cors_origins",
	"trust-proxy":        "http.trust_proxy",
	"database-url":       "database.url",
	"db-max-conns":       "database.max_conns",
	"db-connect-retries": "database.connect_retries",
	"db-connect-backoff": "database.connect_backoff",
	"bcrypt-cost":        "auth.bcrypt_cost",
	"access-ttl":         "auth.access_ttl",
	"refresh-ttl":        "auth.refresh_ttl",
	"jwt-issuer":         "auth.issuer",
	"lockout-threshold":  "auth.lockout_threshold",
	"lockout-duration":   "auth.lockout_duration",
	"reset-token-ttl":    "auth.reset_token_ttl",
	"rate-limit":         "ratelimit.rate",
	"rate-burst":         "ratelimit.burst",
	"log-level":          "log.level",
	"log-format":         "log.format",
}

// RegisterFlags adds the serve flags with their defaults to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", DefaultHTTPAddr, "API listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.Duration("shutdown-timeout", DefaultShutdownTimeout, "graceful shutdown grace period")
	fs.StringSlice("cors-origins", nil, "allowed CORS origins, glob patterns allowed")
	fs.Bool("trust-proxy", false, "take client addresses from X-Forwarded-For (only behind a trusted proxy)")
	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.Int32("db-max-conns", DefaultMaxConns, "maximum pool connections")
	fs.Uint64("db-connect-retries", DefaultConnectRetries, "database connect attempts at startup")
	fs.Duration("db-connect-backoff", DefaultConnectBackoff, "initial delay between connect attempts")
	fs.Int("bcrypt-cost", auth.DefaultBcryptCost, "bcrypt work factor")
	fs.Duration("access-ttl", auth.DefaultAccessTokenTTL, "access token lifetime")
	fs.Duration("refresh-ttl", auth.DefaultRefreshTokenTTL, "refresh token lifetime")
	fs.String("jwt-issuer", auth.DefaultTokenIssuer, "JWT iss claim")
	fs.Int("lockout-threshold", auth.DefaultLockoutThreshold, "consecutive failures before lockout")
	fs.Duration("lockout-duration", auth.DefaultLockoutDuration, "lockout duration")
	fs.Duration("reset-token-ttl", auth.DefaultResetTokenTTL, "password reset token lifetime")
	fs.Float64("rate-limit", DefaultRateLimit, "sustained requests per second per client on public auth routes (0 = off)")
	fs.Int("rate-burst", DefaultRateBurst, "request burst per client")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
}
