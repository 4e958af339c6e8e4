// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPasswordCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password reset flow",
	}
	cmd.AddCommand(newPasswordRequestResetCmd(deps), newPasswordResetCmd(deps))
	return cmd
}

func newPasswordRequestResetCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "request-reset EMAIL",
		Short: "Issue a password reset token and send the link",
		Long: `Issue a password reset token and send the link. Unknown addresses are
accepted silently so the command cannot be used to probe for accounts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				return a.workflow.RequestPasswordReset(ctx, args[0])
			})
		},
	}
}

func newPasswordResetCmd(deps *Deps) *cobra.Command {
	var pw passwordInput

	cmd := &cobra.Command{
		Use:   "reset EMAIL TOKEN",
		Short: "Set a new password with a reset token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.read(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				if err := a.workflow.ConfirmPasswordReset(ctx, args[0], args[1], password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
				return nil
			})
		},
	}
	pw.register(cmd, "new-password", "the new password")
	return cmd
}
