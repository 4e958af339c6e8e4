// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. N is 2^workFactor and comes from configuration.
const (
	scryptR       = 8
	scryptP       = 1
	scryptSaltLen = 16 // bytes
	scryptKeyLen  = 64 // bytes

	MinWorkFactor = 10
	MaxWorkFactor = 20
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded "salt:key" record for the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify reports whether password matches the record. Malformed records
	// and cancelled contexts yield false.
	Verify(ctx context.Context, password, record string) bool

	// NeedsUpgrade returns true if the record was produced by a legacy algorithm.
	NeedsUpgrade(record string) bool
}

// ScryptHasher implements PasswordHasher with a peppered scrypt KDF.
// Records are base64(salt) ":" base64(key). Legacy bcrypt records still verify.
type ScryptHasher struct {
	pepper []byte
	n      int
}

// NewScryptHasher creates a ScryptHasher. pepper is mixed into every
// password with HMAC-SHA256 before derivation.
func NewScryptHasher(pepper []byte, workFactor int) (*ScryptHasher, error) {
	if len(pepper) == 0 {
		return nil, oops.Code("HASHER_INVALID").Errorf("pepper is required")
	}
	if workFactor < MinWorkFactor || workFactor > MaxWorkFactor {
		return nil, oops.Code("HASHER_INVALID").
			With("work_factor", workFactor).
			Errorf("work factor must be between %d and %d", MinWorkFactor, MaxWorkFactor)
	}
	return &ScryptHasher{pepper: pepper, n: 1 << workFactor}, nil
}

// Hash derives a fresh record for password.
func (h *ScryptHasher) Hash(_ context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	start := time.Now()
	key, err := h.derive(password, salt)
	observeHash("hash", start)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(key), nil
}

// Verify checks password against record in constant time.
func (h *ScryptHasher) Verify(_ context.Context, password, record string) bool {
	if isBcrypt(record) {
		return bcrypt.CompareHashAndPassword([]byte(record), []byte(password)) == nil
	}

	saltPart, keyPart, ok := strings.Cut(record, ":")
	if !ok || saltPart == "" || keyPart == "" {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(keyPart)
	if err != nil || len(expected) != scryptKeyLen {
		return false
	}

	start := time.Now()
	computed, err := h.derive(password, salt)
	observeHash("verify", start)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// NeedsUpgrade returns true for bcrypt records.
func (h *ScryptHasher) NeedsUpgrade(record string) bool {
	return isBcrypt(record)
}

func (h *ScryptHasher) derive(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(h.pepper64(password)), salt, h.n, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, oops.Code("AUTH_KDF_FAILED").Wrap(err)
	}
	return key, nil
}

// pepper64 returns base64(HMAC-SHA256(pepper, password)).
func (h *ScryptHasher) pepper64(password string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func isBcrypt(record string) bool {
	return strings.HasPrefix(record, "$2a$") ||
		strings.HasPrefix(record, "$2b$") ||
		strings.HasPrefix(record, "$2y$")
}
