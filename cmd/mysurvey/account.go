// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package main

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newAccountCmd(g *globalFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer user accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "activate <email>",
		Short: "Re-enable a deactivated account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd, g, deps, args[0], func(ctx context.Context, admin AccountAdmin, id ulid.ULID) error {
				if _, err := admin.SetActive(ctx, id, true); err != nil {
					return err
				}
				cmd.Printf("Account %s activated\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate <email>",
		Short: "Disable an account so it can no longer sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd, g, deps, args[0], func(ctx context.Context, admin AccountAdmin, id ulid.ULID) error {
				if _, err := admin.SetActive(ctx, id, false); err != nil {
					return err
				}
				cmd.Printf("Account %s deactivated\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unlock <email>",
		Short: "Clear failed login attempts and any lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd, g, deps, args[0], func(ctx context.Context, admin AccountAdmin, id ulid.ULID) error {
				if err := admin.Unlock(ctx, id); err != nil {
					return err
				}
				cmd.Printf("Account %s unlocked\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

// withAccount resolves email to an account ID and runs fn against it.
func withAccount(cmd *cobra.Command, g *globalFlags, deps *Deps, email string,
	fn func(ctx context.Context, admin AccountAdmin, id ulid.ULID) error,
) error {
	cfg, logger, err := g.loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	admin, release, err := deps.AccountAdminFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	profile, err := admin.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	id, err := ulid.Parse(profile.ID)
	if err != nil {
		return oops.Code("ACCOUNT_CORRUPT").With("id", profile.ID).Wrap(err)
	}
	return fn(ctx, admin, id)
}
