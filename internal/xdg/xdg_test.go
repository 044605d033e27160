// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package xdg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		assert.Equal(t, "/custom/config/mysurvey", ConfigDir())
	})

	t.Run("falls back to HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/test")
		assert.Equal(t, "/home/test/.config/mysurvey", ConfigDir())
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, filepath.Join("/custom/config/mysurvey", "config.yaml"), ConfigFile())
}
