// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mysurvey/mysurvey/internal/config"
	"github.com/mysurvey/mysurvey/internal/logging"
)

const serviceName = "mysurvey"

// Global flags available to all subcommands.
type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the MySurvey CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "mysurvey",
		Short: "MySurvey - survey platform authentication service",
		Long: `MySurvey authenticates survey authors: registration, login with
lockout, token refresh and password reset over a JSON API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/mysurvey/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file to load if present")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(g, deps))
	cmd.AddCommand(newMigrateCmd(g, deps))
	cmd.AddCommand(newAccountCmd(g, deps))

	return cmd
}

func (g *globalFlags) options() config.Options {
	return config.Options{ConfigFile: g.configFile, EnvFile: g.envFile}
}

// loadConfig loads and fully validates configuration, then builds the logger.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.Flags(), g.options())
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cmd, cfg), nil
}

// loadDatabaseConfig loads configuration for commands that only need the database.
func (g *globalFlags) loadDatabaseConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadDatabase(cmd.Flags(), g.options())
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cmd, cfg), nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Level(), cmd.ErrOrStderr())
}
