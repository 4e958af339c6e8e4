// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AccountService handles signup and account removal.
type AccountService struct {
	users    UserRepository
	hasher   PasswordHasher
	workflow *VerificationWorkflow
	logger   *slog.Logger
}

// NewAccountService creates an AccountService. logger may be nil.
func NewAccountService(users UserRepository, hasher PasswordHasher, workflow *VerificationWorkflow, logger *slog.Logger) (*AccountService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if workflow == nil {
		return nil, oops.Errorf("verification workflow is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{users: users, hasher: hasher, workflow: workflow, logger: logger}, nil
}

// Register creates a user and starts email verification. A failure to issue
// the verification token is logged; the user can request a resend.
func (s *AccountService) Register(ctx context.Context, email, password string, role Role) (*User, error) {
	if err := ValidateEmail(NormalizeEmail(email)); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	record, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "hash").Wrap(err)
	}

	user, err := NewUser(email, record, role)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "create user").
			With("email", user.Email).
			Wrap(err)
	}

	if err := s.workflow.RequestEmailVerification(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "email verification not started after signup",
			"user_id", user.ID.String(),
			"error", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "role", string(user.Role))
	return user, nil
}

// Delete removes a user and every security token it owns.
func (s *AccountService) Delete(ctx context.Context, id ulid.ULID) error {
	if err := s.users.DeleteTokensForUser(ctx, id); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete tokens").
			With("user_id", id.String()).
			Wrap(err)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete user").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}
