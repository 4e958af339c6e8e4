// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/pkg/errutil"
)

func TestNewUser(t *testing.T) {
	user, err := auth.NewUser("  Alice@Example.COM ", "salt:key", "")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.False(t, user.EmailVerified)
	assert.False(t, user.ID.IsZero())
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)

	_, err = auth.NewUser("alice@example.com", "", auth.RoleUser)
	errutil.AssertErrorCode(t, err, "USER_INVALID")
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"empty", "", true},
		{"seven characters", "Secret1", true},
		{"eight characters", "Secret12", false},
		{"multibyte counts runes", strings.Repeat("é", 8), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "AUTH_WEAK_PASSWORD")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"alice@example.com", true},
		{"bob+keyward@mail.example.co.uk", true},
		{"alice", false},
		{"alice@", false},
		{"@example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "USER_INVALID_EMAIL")
		})
	}
}

func TestRoleAndPurposeValid(t *testing.T) {
	for _, r := range []auth.Role{auth.RoleAdmin, auth.RoleUser, auth.RoleOrganizer} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, auth.Role("ROOT").Valid())

	for _, p := range []auth.Purpose{auth.PurposeEmailVerification, auth.PurposePasswordReset, auth.PurposeTwoFactor} {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, auth.Purpose("LOGIN").Valid())
}

func TestNewSecurityToken(t *testing.T) {
	row, err := auth.NewSecurityToken(ulid.Make(), auth.PurposeTwoFactor, "value")
	require.NoError(t, err)
	assert.False(t, row.ID.IsZero())

	tests := []struct {
		name    string
		userID  ulid.ULID
		purpose auth.Purpose
		value   string
	}{
		{"zero user", ulid.ULID{}, auth.PurposeTwoFactor, "value"},
		{"unknown purpose", ulid.Make(), auth.Purpose("LOGIN"), "value"},
		{"empty value", ulid.Make(), auth.PurposeTwoFactor, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.NewSecurityToken(tt.userID, tt.purpose, tt.value)
			errutil.AssertErrorCode(t, err, "TOKEN_INVALID_ROW")
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", auth.ErrorCode(nil))
	assert.Equal(t, "", auth.ErrorCode(auth.ErrNotFound))
	assert.Equal(t, "AUTH_WEAK_PASSWORD", auth.ErrorCode(auth.ValidatePassword("x")))
}
