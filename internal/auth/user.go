// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinPasswordLength is the shortest password accepted at signup or reset.
const MinPasswordLength = 8

// Role is the authorization role carried in access tokens.
type Role string

// Known roles.
const (
	RoleAdmin     Role = "ADMIN"
	RoleUser      Role = "USER"
	RoleOrganizer Role = "ORGANIZER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleOrganizer:
		return true
	}
	return false
}

// User is an account owning a credential and zero or more security tokens.
type User struct {
	ID            ulid.ULID
	Email         string
	PasswordHash  string
	EmailVerified bool
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUser creates a User with a fresh ID. The email is normalised to lower case.
func NewUser(email, passwordHash string, role Role) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID").Errorf("password hash cannot be empty")
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, oops.Code("USER_INVALID").With("role", string(role)).Errorf("unknown role")
	}
	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a plausible address.
func ValidateEmail(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return oops.Code("USER_INVALID_EMAIL").With("email", email).Wrap(err)
	}
	return nil
}

// ValidatePassword checks the minimum password policy.
func ValidatePassword(password string) error {
	if err := validation.Validate(password, validation.Required, validation.RuneLength(MinPasswordLength, 0)); err != nil {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			Wrap(err)
	}
	return nil
}

// IdentifierField names the unique column a user can be looked up by.
type IdentifierField string

// Lookup fields.
const (
	ByID    IdentifierField = "id"
	ByEmail IdentifierField = "email"
)

// UserField names a column that can be projected by FindByIdentifier.
type UserField string

// Projectable fields. Omitting fields selects all of them.
const (
	FieldID            UserField = "id"
	FieldEmail         UserField = "email"
	FieldPasswordHash  UserField = "password_hash"
	FieldEmailVerified UserField = "email_verified"
	FieldRole          UserField = "role"
	FieldCreatedAt     UserField = "created_at"
	FieldUpdatedAt     UserField = "updated_at"
)

// AllUserFields lists every projectable field in column order.
var AllUserFields = []UserField{
	FieldID, FieldEmail, FieldPasswordHash, FieldEmailVerified,
	FieldRole, FieldCreatedAt, FieldUpdatedAt,
}

// UserRepository is the user store collaborator.
type UserRepository interface {
	// FindByIdentifier looks a user up by a unique field. When fields is
	// non-empty only those columns are populated. Returns an error wrapping
	// ErrNotFound when there is no match.
	FindByIdentifier(ctx context.Context, field IdentifierField, value string, fields ...UserField) (*User, error)

	// Create stores a new user. Returns an error wrapping ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, user *User) error

	// Save persists changes to an existing user.
	Save(ctx context.Context, user *User) error

	// Delete removes a user. Security tokens cascade.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteTokensForUser removes every security token owned by the user.
	DeleteTokensForUser(ctx context.Context, id ulid.ULID) error
}
