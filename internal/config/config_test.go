// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysurvey/mysurvey/internal/auth"
	"github.com/mysurvey/mysurvey/pkg/errutil"
)

// isolate points XDG at an empty directory and clears variables Load reads.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix) {
			// Setenv registers the restore; Unsetenv hides the key from Load.
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("MYSURVEY_AUTH_ACCESS_SECRET", "access-secret")
	t.Setenv("MYSURVEY_AUTH_REFRESH_SECRET", "refresh-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/mysurvey")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	setSecrets(t)

	cfg, err := Load(newFlags(t), Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.HTTP.Addr)
	assert.Equal(t, DefaultMetricsAddr, cfg.HTTP.MetricsAddr)
	assert.Equal(t, DefaultShutdownTimeout, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "postgres://localhost/mysurvey", cfg.Database.URL)
	assert.Equal(t, int32(DefaultMaxConns), cfg.Database.MaxConns)
	assert.Equal(t, auth.DefaultBcryptCost, cfg.Auth.BcryptCost)
	assert.Equal(t, auth.DefaultAccessTokenTTL, cfg.Auth.AccessTTL)
	assert.Equal(t, auth.DefaultRefreshTokenTTL, cfg.Auth.RefreshTTL)
	assert.Equal(t, auth.DefaultLockoutThreshold, cfg.Auth.LockoutThreshold)
	assert.Equal(t, auth.DefaultLockoutDuration, cfg.Auth.LockoutDuration)
	assert.Equal(t, auth.DefaultResetTokenTTL, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, DefaultRateBurst, cfg.RateLimit.Burst)
	assert.InDelta(t, DefaultRateLimit, cfg.RateLimit.Rate, 1e-9)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	setSecrets(t)

	path := writeFile(t, "config.yaml", `
http:
  addr: ":7000"
  metrics_addr: ":7001"
auth:
  bcrypt_cost: 10
  lockout_threshold: 3
log:
  format: text
`)
	t.Setenv("MYSURVEY_HTTP_ADDR", ":7100")
	t.Setenv("MYSURVEY_AUTH_LOCKOUT_THRESHOLD", "4")

	cfg, err := Load(newFlags(t, "--lockout-threshold=6"), Options{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, ":7100", cfg.HTTP.Addr, "env beats file")
	assert.Equal(t, ":7001", cfg.HTTP.MetricsAddr, "file beats flag default")
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 6, cfg.Auth.LockoutThreshold, "changed flag beats env")
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, auth.DefaultLockoutDuration, cfg.Auth.LockoutDuration)
}

func TestLoad_EnvDurationsAndLists(t *testing.T) {
	isolate(t)
	setSecrets(t)
	t.Setenv("MYSURVEY_AUTH_ACCESS_TTL", "5m")
	t.Setenv("MYSURVEY_HTTP_CORS_ORIGINS", "https://app.example.com,https://*.example.org")

	cfg, err := Load(newFlags(t), Options{})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, []string{"https://app.example.com", "https://*.example.org"}, cfg.HTTP.CORSOrigins)
}

func TestLoad_EnvFile(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/mysurvey")
	path := writeFile(t, ".env", "MYSURVEY_AUTH_ACCESS_SECRET=from-dotenv-a\nMYSURVEY_AUTH_REFRESH_SECRET=from-dotenv-r\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("MYSURVEY_AUTH_ACCESS_SECRET")
		_ = os.Unsetenv("MYSURVEY_AUTH_REFRESH_SECRET")
	})

	cfg, err := Load(newFlags(t), Options{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv-a", cfg.Auth.AccessSecret)
	assert.Equal(t, "from-dotenv-r", cfg.Auth.RefreshSecret)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	isolate(t)
	setSecrets(t)

	_, err := Load(newFlags(t), Options{EnvFile: filepath.Join(t.TempDir(), "nope.env")})
	require.NoError(t, err)
}

func TestLoad_DefaultConfigFile(t *testing.T) {
	isolate(t)
	setSecrets(t)
	dir := os.Getenv("XDG_CONFIG_HOME")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mysurvey"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mysurvey", "config.yaml"), []byte("http:\n  addr: \":6000\"\n"), 0o600))

	cfg, err := Load(newFlags(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.HTTP.Addr)
}

func TestLoad_ExplicitConfigFileMustExist(t *testing.T) {
	isolate(t)
	setSecrets(t)

	_, err := Load(newFlags(t), Options{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_MISSING")
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	isolate(t)
	setSecrets(t)

	path := writeFile(t, "config.yaml", "http: [unterminated\n")
	_, err := Load(newFlags(t), Options{ConfigFile: path})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_INVALID")
}

func TestLoad_ValidationFailure(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/mysurvey")

	_, err := Load(newFlags(t), Options{})
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "key", "auth.access_secret")
}

func validConfig() *Config {
	return &Config{
		HTTP:     HTTPConfig{Addr: ":8080", ShutdownTimeout: time.Second},
		Database: DatabaseConfig{URL: "postgres://localhost/db", MaxConns: 4},
		Auth: AuthConfig{
			BcryptCost:       10,
			AccessSecret:     "a",
			AccessTTL:        time.Minute,
			RefreshSecret:    "r",
			RefreshTTL:       time.Hour,
			LockoutThreshold: 5,
			LockoutDuration:  time.Minute,
			ResetTokenTTL:    time.Minute,
		},
		RateLimit: RateLimitConfig{Rate: 1, Burst: 5},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		key    string
	}{
		{"missing addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"zero shutdown timeout", func(c *Config) { c.HTTP.ShutdownTimeout = 0 }, "http.shutdown_timeout"},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"missing access secret", func(c *Config) { c.Auth.AccessSecret = "" }, "auth.access_secret"},
		{"missing refresh secret", func(c *Config) { c.Auth.RefreshSecret = "" }, "auth.refresh_secret"},
		{"same secrets", func(c *Config) { c.Auth.RefreshSecret = c.Auth.AccessSecret }, "auth.refresh_secret"},
		{"zero access ttl", func(c *Config) { c.Auth.AccessTTL = 0 }, "auth.access_ttl"},
		{"refresh shorter than access", func(c *Config) { c.Auth.RefreshTTL = time.Second }, "auth.refresh_ttl"},
		{"bcrypt cost too low", func(c *Config) { c.Auth.BcryptCost = 3 }, "auth.bcrypt_cost"},
		{"bcrypt cost too high", func(c *Config) { c.Auth.BcryptCost = 32 }, "auth.bcrypt_cost"},
		{"zero lockout threshold", func(c *Config) { c.Auth.LockoutThreshold = 0 }, "auth.lockout_threshold"},
		{"zero lockout duration", func(c *Config) { c.Auth.LockoutDuration = 0 }, "auth.lockout_duration"},
		{"zero reset ttl", func(c *Config) { c.Auth.ResetTokenTTL = 0 }, "auth.reset_token_ttl"},
		{"negative rate", func(c *Config) { c.RateLimit.Rate = -1 }, "ratelimit.rate"},
		{"rate without burst", func(c *Config) { c.RateLimit.Burst = 0 }, "ratelimit.burst"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	require.NoError(t, validConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}
}

func TestConfig_RateLimitDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit = RateLimitConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Derived(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Issuer = "mysurvey-test"

	policy := cfg.LockoutPolicy()
	assert.Equal(t, 5, policy.Threshold)
	assert.Equal(t, time.Minute, policy.Duration)

	tc := cfg.TokenConfig()
	assert.Equal(t, []byte("a"), tc.AccessSecret)
	assert.Equal(t, []byte("r"), tc.RefreshSecret)
	assert.Equal(t, time.Hour, tc.RefreshTTL)
	assert.Equal(t, "mysurvey-test", tc.Issuer)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "auth.access_secret", envKey("MYSURVEY_AUTH_ACCESS_SECRET"))
	assert.Equal(t, "http.addr", envKey("MYSURVEY_HTTP_ADDR"))
	assert.Equal(t, "debug", envKey("MYSURVEY_DEBUG"))
}

func TestEnvValue(t *testing.T) {
	key, value := envValue("MYSURVEY_HTTP_CORS_ORIGINS", " https://a.example.com , ,https://*.example.org")
	assert.Equal(t, "http.cors_origins", key)
	assert.Equal(t, []string{"https://a.example.com", "https://*.example.org"}, value)

	key, value = envValue("MYSURVEY_HTTP_ADDR", ":9000")
	assert.Equal(t, "http.addr", key)
	assert.Equal(t, ":9000", value)
}

func TestLoadDatabase_SkipsAuthSettings(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/mysurvey")

	cfg, err := LoadDatabase(newFlags(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/mysurvey", cfg.Database.URL)
	assert.Empty(t, cfg.Auth.AccessSecret)
}

func TestLoadDatabase_RequiresURL(t *testing.T) {
	isolate(t)

	_, err := LoadDatabase(newFlags(t), Options{})
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "key", "database.url")
}

func TestLoad_DatabaseURLFlagBeatsEnvironment(t *testing.T) {
	isolate(t)
	setSecrets(t)

	cfg, err := Load(newFlags(t, "--database-url=postgres://flag/db"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", cfg.Database.URL)
}

func TestConfig_Level(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "debug"
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}
