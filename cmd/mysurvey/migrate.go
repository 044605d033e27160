// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globalFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Manage the PostgreSQL schema. Only the database URL is required;
auth secrets are not needed to migrate.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, g, deps, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all data; re-run with --yes")
			}
			return withMigrator(cmd, g, deps, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "steps <n>",
		Short: "Apply n migrations (negative n rolls back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil || n == 0 {
				return oops.Code("INVALID_STEPS").With("input", args[0]).Errorf("steps must be a non-zero integer")
			}
			return withMigrator(cmd, g, deps, func(m Migrator) error {
				if err := m.Steps(n); err != nil {
					return err
				}
				cmd.Printf("Applied %d migration step(s)\n", n)
				return nil
			})
		},
	})

	var asJSON bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, g, deps, func(m Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}
				name := st.Name
				if name == "" {
					name = "none"
				}
				cmd.Printf("Version: %d (%s)\n", st.Version, name)
				cmd.Printf("Dirty:   %t\n", st.Dirty)
				cmd.Printf("Pending: %d\n", len(st.Pending))
				return nil
			})
		},
	}
	status.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	cmd.AddCommand(status)

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied without running it",
		Long: `Mark a schema version as applied without running any migration.
Use only to recover a dirty database after fixing it by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, g, deps, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn and
// closes it. A close failure is reported only when fn succeeded.
func withMigrator(cmd *cobra.Command, g *globalFlags, deps *Deps, fn func(Migrator) error) (err error) {
	cfg, logger, err := g.loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}
	m, err := deps.MigratorFactory(cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return version, nil
}
