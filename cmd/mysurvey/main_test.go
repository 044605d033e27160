// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysurvey/mysurvey/internal/config"
	"github.com/mysurvey/mysurvey/pkg/errutil"
)

// isolateEnv keeps tests away from the developer's config, dotenv file and
// environment.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if name == "DATABASE_URL" || strings.HasPrefix(name, config.EnvPrefix) {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
}

// execute runs the root command with deps and returns stdout.
func execute(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, err := execute(t, nil, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "migrate", "account"} {
		assert.Contains(t, out, sub, "help missing %q command", sub)
	}
}

func TestRootCommand_RegistersConfigFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"config", "env-file", "database-url", "log-level", "http-addr", "bcrypt-cost"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %q", name)
	}
	// Secrets are never accepted on the command line.
	assert.Nil(t, cmd.PersistentFlags().Lookup("access-secret"))
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, &Deps{MigratorFactory: failingMigratorFactory(t)},
		"--config", filepath.Join(t.TempDir(), "nope.yaml"), "migrate", "status")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_MISSING")
}
