// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
)

// passwordInput is the --password / --password-stdin flag pair.
type passwordInput struct {
	value     string
	fromStdin bool
}

func (p *passwordInput) register(cmd *cobra.Command, name, usage string) {
	cmd.Flags().StringVar(&p.value, name, "", usage)
	cmd.Flags().BoolVar(&p.fromStdin, name+"-stdin", false, "read the "+name+" from the first line of stdin")
}

func (p *passwordInput) read(cmd *cobra.Command) (string, error) {
	if !p.fromStdin {
		if p.value == "" {
			return "", oops.Code("PASSWORD_REQUIRED").Errorf("a password is required")
		}
		return p.value, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", oops.Code("PASSWORD_REQUIRED").Wrapf(err, "no password on stdin")
		}
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("no password on stdin")
	}
	return line, nil
}

func newUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(
		newUserCreateCmd(deps),
		newUserLoginCmd(deps),
		newUserVerifyEmailCmd(deps),
		newUserRequestVerificationCmd(deps),
		newUserDeleteCmd(deps),
	)
	return cmd
}

func newUserCreateCmd(deps *Deps) *cobra.Command {
	var pw passwordInput
	var role string

	cmd := &cobra.Command{
		Use:   "create EMAIL",
		Short: "Register a user and send the verification link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.read(cmd)
			if err != nil {
				return err
			}
			r := auth.Role(strings.ToUpper(role))
			if !r.Valid() {
				return oops.Code("USER_INVALID_ROLE").With("role", role).Errorf("role must be ADMIN, USER or ORGANIZER")
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				user, err := a.accounts.Register(ctx, args[0], password, r)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s, %s)\n", user.ID, user.Email, user.Role)
				return nil
			})
		},
	}
	pw.register(cmd, "password", "password for the new user")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "role (ADMIN, USER, ORGANIZER)")
	return cmd
}

func newUserLoginCmd(deps *Deps) *cobra.Command {
	var pw passwordInput

	cmd := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Check credentials and print a signed access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.read(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				result, err := a.credentials.Login(ctx, args[0], password)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.AccessToken)
				cmd.PrintErrf("expires in %s\n", result.MaxAge.Round(time.Second))
				return nil
			})
		},
	}
	pw.register(cmd, "password", "account password")
	return cmd
}

func newUserVerifyEmailCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-email EMAIL TOKEN",
		Short: "Confirm an email address with a verification token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				user, err := a.workflow.ConfirmEmailVerification(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Verified %s\n", user.Email)
				return nil
			})
		},
	}
}

func newUserRequestVerificationCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "request-verification EMAIL",
		Short: "Issue a new email verification token and send the link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				user, err := a.users.FindByIdentifier(ctx, auth.ByEmail, auth.NormalizeEmail(args[0]))
				if err != nil {
					return err
				}
				if user.EmailVerified {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already verified\n", user.Email)
					return nil
				}
				return a.workflow.RequestEmailVerification(ctx, user)
			})
		},
	}
}

func newUserDeleteCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete EMAIL",
		Short: "Delete a user and every token it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				user, err := a.users.FindByIdentifier(ctx, auth.ByEmail, auth.NormalizeEmail(args[0]), auth.FieldID, auth.FieldEmail)
				if err != nil {
					return err
				}
				if err := a.accounts.Delete(ctx, user.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", user.ID)
				return nil
			})
		},
	}
}
