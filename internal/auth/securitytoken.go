// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Purpose scopes a security token. At most one token exists per user and purpose.
type Purpose string

// Known purposes.
const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
	PurposePasswordReset     Purpose = "PASSWORD_RESET"
	PurposeTwoFactor         Purpose = "TWO_FACTOR"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposePasswordReset, PurposeTwoFactor:
		return true
	}
	return false
}

// SecurityToken is the persisted row for the active token of a (user, purpose) slot.
// Expiry is not stored; it lives in the signed TokenValue.
type SecurityToken struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	Purpose    Purpose
	TokenValue string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSecurityToken creates a SecurityToken with validated fields.
func NewSecurityToken(userID ulid.ULID, purpose Purpose, tokenValue string) (*SecurityToken, error) {
	if userID.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_ROW").Errorf("user ID cannot be zero")
	}
	if !purpose.Valid() {
		return nil, oops.Code("TOKEN_INVALID_ROW").With("purpose", string(purpose)).Errorf("unknown purpose")
	}
	if tokenValue == "" {
		return nil, oops.Code("TOKEN_INVALID_ROW").Errorf("token value cannot be empty")
	}
	now := time.Now().UTC()
	return &SecurityToken{
		ID:         ulid.Make(),
		UserID:     userID,
		Purpose:    purpose,
		TokenValue: tokenValue,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// SecurityTokenRepository persists security token rows keyed by (user, purpose).
type SecurityTokenRepository interface {
	// Upsert inserts the row or replaces the token value of the existing row
	// for the same (UserID, Purpose) in one atomic statement.
	Upsert(ctx context.Context, token *SecurityToken) error

	// Get returns the row for the slot. Returns an error wrapping ErrNotFound when absent.
	Get(ctx context.Context, userID ulid.ULID, purpose Purpose) (*SecurityToken, error)

	// Delete removes the slot's row only while it still holds value, in one
	// atomic statement, and reports whether a row was removed. An absent or
	// re-issued row is not an error.
	Delete(ctx context.Context, userID ulid.ULID, purpose Purpose, value string) (bool, error)

	// Restore writes token back into its slot when the slot is empty and
	// reports whether it did. An occupied slot is left untouched.
	Restore(ctx context.Context, token *SecurityToken) (bool, error)

	// List returns every stored row.
	List(ctx context.Context) ([]*SecurityToken, error)
}
