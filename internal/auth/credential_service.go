// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// dummyRecord is verified when a user doesn't exist so that response time
// does not reveal whether the identifier is registered. It never matches.
var dummyRecord = base64.StdEncoding.EncodeToString(make([]byte, scryptSaltLen)) + ":" +
	base64.StdEncoding.EncodeToString(make([]byte, scryptKeyLen))

// credentialFields is the projection loaded for authentication; it covers
// every column Save writes.
var credentialFields = []UserField{
	FieldID, FieldEmail, FieldPasswordHash, FieldEmailVerified, FieldRole, FieldUpdatedAt,
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken string
	User        *User
	Claims      Claims
	// MaxAge is the remaining lifetime of AccessToken.
	MaxAge time.Duration
}

// CredentialService authenticates users by email and password.
type CredentialService struct {
	users  UserRepository
	hasher PasswordHasher
	signer *TokenSigner
	logger *slog.Logger
}

// NewCredentialService creates a CredentialService. logger may be nil.
func NewCredentialService(users UserRepository, hasher PasswordHasher, signer *TokenSigner, logger *slog.Logger) (*CredentialService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if signer == nil {
		return nil, oops.Errorf("token signer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{users: users, hasher: hasher, signer: signer, logger: logger}, nil
}

// Authenticate returns the user identified by identifier if password matches.
// Unknown users and wrong passwords both yield AUTH_INVALID_CREDENTIALS.
func (s *CredentialService) Authenticate(ctx context.Context, identifier, password string) (*User, error) {
	user, err := s.users.FindByIdentifier(ctx, ByEmail, NormalizeEmail(identifier), credentialFields...)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			AuthenticationAttempts.WithLabelValues(OutcomeError).Inc()
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "find user").
				Wrap(err)
		}
		user = nil
	}

	if user == nil || user.PasswordHash == "" {
		s.hasher.Verify(ctx, password, dummyRecord)
		AuthenticationAttempts.WithLabelValues(OutcomeInvalid).Inc()
		return nil, invalidCredentials()
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		AuthenticationAttempts.WithLabelValues(OutcomeInvalid).Inc()
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgrade(ctx, user, password)
	}

	AuthenticationAttempts.WithLabelValues(OutcomeSuccess).Inc()
	return user, nil
}

// Login authenticates and signs an access token carrying sub, email and role.
func (s *CredentialService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	claims := Claims{
		ClaimSubject: user.ID.String(),
		ClaimEmail:   user.Email,
		ClaimRole:    string(user.Role),
	}
	token, err := s.signer.Sign(claims, 0)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "sign access token").Wrap(err)
	}

	var maxAge time.Duration
	if decoded := s.signer.Decode(token); decoded != nil {
		if exp := decoded.ExpiresAt(); !exp.IsZero() {
			maxAge = time.Until(exp)
		}
	}

	return &LoginResult{AccessToken: token, User: user, Claims: claims, MaxAge: maxAge}, nil
}

// upgrade rehashes a legacy record. Login succeeds regardless of the outcome.
func (s *CredentialService) upgrade(ctx context.Context, user *User, password string) {
	record, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort credential upgrade failed",
			"operation", "hash",
			"user_id", user.ID.String(),
			"error", err)
		return
	}
	user.PasswordHash = record
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Save(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "best-effort credential upgrade failed",
			"operation", "save",
			"user_id", user.ID.String(),
			"error", err)
	}
}
