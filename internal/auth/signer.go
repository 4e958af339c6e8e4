// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the minimum signing secret size in bytes.
const MinSecretLength = 32

// Registered claim names.
const (
	ClaimSubject   = "sub"
	ClaimExpiresAt = "exp"
	ClaimIssuedAt  = "iat"
	ClaimID        = "jti"
	ClaimPurpose   = "purpose"
	ClaimEmail     = "email"
	ClaimRole      = "role"
)

// Claims is the payload of a signed token.
type Claims map[string]any

// Subject returns the "sub" claim or "".
func (c Claims) Subject() string {
	s, _ := c[ClaimSubject].(string)
	return s
}

// Purpose returns the "purpose" claim or "".
func (c Claims) Purpose() Purpose {
	s, _ := c[ClaimPurpose].(string)
	return Purpose(s)
}

// ExpiresAt returns the "exp" claim, or the zero time when absent.
func (c Claims) ExpiresAt() time.Time {
	exp, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// SignerOption configures a TokenSigner.
type SignerOption func(*TokenSigner)

// WithClock overrides the signer's time source.
func WithClock(now func() time.Time) SignerOption {
	return func(s *TokenSigner) { s.now = now }
}

// TokenSigner issues and checks HS256 JWTs with a shared secret.
type TokenSigner struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a TokenSigner. defaultTTL applies when Sign is
// called without an explicit lifetime.
func NewTokenSigner(secret []byte, defaultTTL time.Duration, opts ...SignerOption) (*TokenSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("SIGNER_INVALID").
			With("min_length", MinSecretLength).
			Errorf("signing secret is too short")
	}
	if defaultTTL <= 0 {
		return nil, oops.Code("SIGNER_INVALID").Errorf("default token lifetime must be positive")
	}
	s := &TokenSigner{secret: secret, defaultTTL: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultTTL returns the lifetime used when Sign gets none.
func (s *TokenSigner) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Sign returns a compact token for claims. The claims must carry a subject.
// expiresIn <= 0 selects the default lifetime. iat, exp and a unique jti are
// always set by the signer.
func (s *TokenSigner) Sign(claims Claims, expiresIn time.Duration) (string, error) {
	if claims.Subject() == "" {
		return "", oops.Code("TOKEN_SIGN_FAILED").Errorf("claims must include a subject")
	}
	if expiresIn <= 0 {
		expiresIn = s.defaultTTL
	}

	now := s.now()
	mc := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		mc[k] = v
	}
	mc[ClaimIssuedAt] = jwt.NewNumericDate(now)
	mc[ClaimExpiresAt] = jwt.NewNumericDate(now.Add(expiresIn))
	mc[ClaimID] = ulid.Make().String()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its claims.
// Failures wrap ErrTokenExpired when only the expiry has elapsed and
// ErrTokenInvalid otherwise.
func (s *TokenSigner) Verify(token string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)

	mc := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
		return Claims(mc), nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, oops.Code(CodeTokenExpired).With("reason", err.Error()).Wrap(ErrTokenExpired)
	default:
		return nil, oops.Code(CodeTokenInvalid).With("reason", err.Error()).Wrap(ErrTokenInvalid)
	}
}

// Decode parses token without checking signature or expiry. It returns nil
// when token cannot be parsed.
func (s *TokenSigner) Decode(token string) Claims {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil
	}
	return Claims(mc)
}
