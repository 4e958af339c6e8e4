// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Error codes surfaced to callers. Transport layers map these to responses.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeEmailTaken         = "USER_EMAIL_TAKEN"
	CodeTokenNotFound      = "TOKEN_NOT_FOUND"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenInvalid       = "TOKEN_INVALID"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Sentinels wrapped by the coded errors so callers can use errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrEmailTaken         = errors.New("email already registered")
	ErrTokenNotFound      = errors.New("security token not found")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	// ErrTokenMismatch is a TokenInvalid whose value is not the most recently issued one.
	ErrTokenMismatch = fmt.Errorf("%w: superseded or foreign token", ErrTokenInvalid)
)

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func userNotFound(email string) error {
	return oops.Code(CodeUserNotFound).With("email", email).Wrap(ErrUserNotFound)
}

func tokenNotFound(slot tokenKey) error {
	return oops.Code(CodeTokenNotFound).
		With("user_id", slot.userID.String()).
		With("purpose", string(slot.purpose)).
		Wrap(ErrTokenNotFound)
}

// ErrorCode returns the oops code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
