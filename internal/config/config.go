// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

// Package config loads MySurvey settings from flags, environment, .env and YAML.
//
// Precedence, highest first: explicitly set flags, MYSURVEY_* environment
// variables (including those loaded from .env), the config file, flag defaults.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/mysurvey/mysurvey/internal/auth"
	"github.com/mysurvey/mysurvey/internal/logging"
	"github.com/mysurvey/mysurvey/internal/xdg"
)

// EnvPrefix is the prefix of environment variables read into the config.
// MYSURVEY_AUTH_ACCESS_SECRET maps to auth.access_secret.
const EnvPrefix = "MYSURVEY_"

// Config is the complete service configuration.
type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Log       LogConfig       `koanf:"log"`
}

// HTTPConfig configures the API and metrics listeners.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	TrustProxy      bool          `koanf:"trust_proxy"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string        `koanf:"url"`
	MaxConns       int32         `koanf:"max_conns"`
	ConnectRetries uint64        `koanf:"connect_retries"`
	ConnectBackoff time.Duration `koanf:"connect_backoff"`
}

// AuthConfig configures hashing, tokens, lockout and password reset.
type AuthConfig struct {
	BcryptCost       int           `koanf:"bcrypt_cost"`
	AccessSecret     string        `koanf:"access_secret"`
	AccessTTL        time.Duration `koanf:"access_ttl"`
	RefreshSecret    string        `koanf:"refresh_secret"`
	RefreshTTL       time.Duration `koanf:"refresh_ttl"`
	Issuer           string        `koanf:"issuer"`
	LockoutThreshold int           `koanf:"lockout_threshold"`
	LockoutDuration  time.Duration `koanf:"lockout_duration"`
	ResetTokenTTL    time.Duration `koanf:"reset_token_ttl"`
}

// RateLimitConfig configures the per-client limiter on public auth routes.
// A Rate of zero disables limiting.
type RateLimitConfig struct {
	Rate  float64 `koanf:"rate"`
	Burst int     `koanf:"burst"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile is an explicit YAML path. It must exist when set.
	// When empty, the XDG default is used if present.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the process environment.
	// Missing files are ignored. Variables already set are not overridden.
	EnvFile string
}

// Load builds a Config from the sources in precedence order and validates it.
// flags must have been registered with RegisterFlags and parsed.
func Load(flags *pflag.FlagSet, opts Options) (*Config, error) {
	cfg, err := load(flags, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase is Load for commands that only touch the database, such as
// migrations. Only the database URL and log settings are checked.
func LoadDatabase(flags *pflag.FlagSet, opts Options) (*Config, error) {
	cfg, err := load(flags, opts)
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, invalid("database.url", "database URL is required")
	}
	if err := cfg.validateLog(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(flags *pflag.FlagSet, opts Options) (*Config, error) {
	ko := koanf.New(".")

	path := opts.ConfigFile
	required := path != ""
	if !required {
		path = xdg.ConfigFile()
	}
	if err := loadFile(ko, path, required); err != nil {
		return nil, err
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_ENV_FILE_INVALID").With("path", opts.EnvFile).Wrap(err)
		}
	}

	if err := ko.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if flags != nil {
		// Unchanged flags only fill keys no other source has set.
		if err := ko.Load(posflag.ProviderWithFlag(flags, ".", ko, flagValue(flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := ko.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

func loadFile(ko *koanf.Koanf, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_FILE_MISSING").With("path", path).Wrap(err)
	}
	if err := ko.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// envKey maps MYSURVEY_SECTION_SOME_KEY to section.some_key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// listKeys hold comma-separated lists when set from the environment.
var listKeys = map[string]bool{
	"http.cors_origins": true,
}

// envValue maps an environment variable to its key and splits list values.
func envValue(name, value string) (string, any) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

func flagValue(flags *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			// Flags such as --config are not config keys.
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.HTTP.Addr == "":
		return invalid("http.addr", "listen address is required")
	case c.HTTP.ShutdownTimeout <= 0:
		return invalid("http.shutdown_timeout", "must be positive")
	case c.Database.URL == "":
		return invalid("database.url", "database URL is required")
	case c.Database.MaxConns < 0:
		return invalid("database.max_conns", "must not be negative")
	case c.Auth.AccessSecret == "":
		return invalid("auth.access_secret", "access token secret is required")
	case c.Auth.RefreshSecret == "":
		return invalid("auth.refresh_secret", "refresh token secret is required")
	case c.Auth.AccessSecret == c.Auth.RefreshSecret:
		return invalid("auth.refresh_secret", "access and refresh secrets must differ")
	case c.Auth.AccessTTL <= 0:
		return invalid("auth.access_ttl", "must be positive")
	case c.Auth.RefreshTTL <= 0:
		return invalid("auth.refresh_ttl", "must be positive")
	case c.Auth.RefreshTTL < c.Auth.AccessTTL:
		return invalid("auth.refresh_ttl", "must not be shorter than auth.access_ttl")
	case c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost:
		return invalid("auth.bcrypt_cost", "must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	case c.Auth.LockoutThreshold < 1:
		return invalid("auth.lockout_threshold", "must be at least 1")
	case c.Auth.LockoutDuration <= 0:
		return invalid("auth.lockout_duration", "must be positive")
	case c.Auth.ResetTokenTTL <= 0:
		return invalid("auth.reset_token_ttl", "must be positive")
	case c.RateLimit.Rate < 0:
		return invalid("ratelimit.rate", "must not be negative")
	case c.RateLimit.Rate > 0 && c.RateLimit.Burst < 1:
		return invalid("ratelimit.burst", "must be at least 1 when rate limiting is enabled")
	}
	return c.validateLog()
}

func (c *Config) validateLog() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	return nil
}

// Level returns the parsed log level. Validate guarantees it parses.
func (c *Config) Level() slog.Level {
	level, _ := logging.ParseLevel(c.Log.Level) //nolint:errcheck // validated
	return level
}

// LockoutPolicy returns the configured lockout policy.
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{Threshold: c.Auth.LockoutThreshold, Duration: c.Auth.LockoutDuration}
}

// TokenConfig returns the token issuer settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  []byte(c.Auth.AccessSecret),
		AccessTTL:     c.Auth.AccessTTL,
		RefreshSecret: []byte(c.Auth.RefreshSecret),
		RefreshTTL:    c.Auth.RefreshTTL,
		Issuer:        c.Auth.Issuer,
	}
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(key+": "+format, args...)
}
