// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package memory provides in-memory implementations of the auth repositories
// for single-process runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// Store holds users and security tokens in memory with the same
// constraints as the database: unique email, unique (user, purpose),
// tokens cascade with their user.
type Store struct {
	mu     sync.Mutex
	users  map[ulid.ULID]auth.User
	tokens map[slot]auth.SecurityToken
}

type slot struct {
	userID  ulid.ULID
	purpose auth.Purpose
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:  make(map[ulid.ULID]auth.User),
		tokens: make(map[slot]auth.SecurityToken),
	}
}

// Users returns the auth.UserRepository view of the store.
func (m *Store) Users() *UserRepository { return &UserRepository{m: m} }

// Tokens returns the auth.SecurityTokenRepository view of the store.
func (m *Store) Tokens() *SecurityTokenRepository { return &SecurityTokenRepository{m: m} }

// TokenCount returns the number of token rows for a slot (0 or 1).
func (m *Store) TokenCount(userID ulid.ULID, purpose auth.Purpose) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[slot{userID, purpose}]; ok {
		return 1
	}
	return 0
}

// UserRepository implements auth.UserRepository.
type UserRepository struct {
	m *Store
}

// FindByIdentifier looks up by id or email and copies the requested fields.
func (r *UserRepository) FindByIdentifier(_ context.Context, field auth.IdentifierField, value string, fields ...auth.UserField) (*auth.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, u := range r.m.users {
		var match bool
		switch field {
		case auth.ByID:
			match = u.ID.String() == value
		case auth.ByEmail:
			match = strings.EqualFold(u.Email, value)
		default:
			return nil, oops.Code("USER_LOOKUP_INVALID").With("field", string(field)).Errorf("unsupported identifier")
		}
		if match {
			return project(u, fields), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").With(string(field), value).Wrap(auth.ErrNotFound)
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return oops.Code(auth.CodeEmailTaken).With("email", user.Email).Wrap(auth.ErrEmailTaken)
		}
	}
	r.m.users[user.ID] = *user
	return nil
}

// Save overwrites the mutable columns of an existing user.
func (r *UserRepository) Save(_ context.Context, user *auth.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.users[user.ID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	stored.Email = user.Email
	stored.PasswordHash = user.PasswordHash
	stored.EmailVerified = user.EmailVerified
	stored.Role = user.Role
	stored.UpdatedAt = user.UpdatedAt
	r.m.users[user.ID] = stored
	return nil
}

// Delete removes a user and cascades to its tokens.
func (r *UserRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[id]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.m.users, id)
	r.m.deleteTokensLocked(id)
	return nil
}

// DeleteTokensForUser removes every token of the user.
func (r *UserRepository) DeleteTokensForUser(_ context.Context, id ulid.ULID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.deleteTokensLocked(id)
	return nil
}

func (m *Store) deleteTokensLocked(id ulid.ULID) {
	for k := range m.tokens {
		if k.userID == id {
			delete(m.tokens, k)
		}
	}
}

// SecurityTokenRepository implements auth.SecurityTokenRepository.
type SecurityTokenRepository struct {
	m *Store
}

// Upsert inserts or replaces the token value for the slot.
func (r *SecurityTokenRepository) Upsert(_ context.Context, token *auth.SecurityToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[token.UserID]; !ok {
		return oops.Code("TOKEN_UPSERT_FAILED").
			With("user_id", token.UserID.String()).
			Errorf("foreign key violation: user does not exist")
	}
	k := slot{token.UserID, token.Purpose}
	if existing, ok := r.m.tokens[k]; ok {
		existing.TokenValue = token.TokenValue
		existing.UpdatedAt = token.UpdatedAt
		r.m.tokens[k] = existing
		return nil
	}
	r.m.tokens[k] = *token
	return nil
}

// Get returns a copy of the slot's row.
func (r *SecurityTokenRepository) Get(_ context.Context, userID ulid.ULID, purpose auth.Purpose) (*auth.SecurityToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tokens[slot{userID, purpose}]
	if !ok {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	return &t, nil
}

// Delete removes the slot's row if it still holds value.
func (r *SecurityTokenRepository) Delete(_ context.Context, userID ulid.ULID, purpose auth.Purpose, value string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	k := slot{userID, purpose}
	if t, ok := r.m.tokens[k]; !ok || t.TokenValue != value {
		return false, nil
	}
	delete(r.m.tokens, k)
	return true, nil
}

// Restore puts token back unless its slot is occupied.
func (r *SecurityTokenRepository) Restore(_ context.Context, token *auth.SecurityToken) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[token.UserID]; !ok {
		return false, oops.Code("TOKEN_RESTORE_FAILED").
			With("user_id", token.UserID.String()).
			Errorf("foreign key violation: user does not exist")
	}
	k := slot{token.UserID, token.Purpose}
	if _, ok := r.m.tokens[k]; ok {
		return false, nil
	}
	r.m.tokens[k] = *token
	return true, nil
}

// List returns all rows ordered by ID.
func (r *SecurityTokenRepository) List(_ context.Context) ([]*auth.SecurityToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*auth.SecurityToken, 0, len(r.m.tokens))
	for _, t := range r.m.tokens {
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out, nil
}

func project(u auth.User, fields []auth.UserField) *auth.User {
	if len(fields) == 0 {
		return &u
	}
	out := &auth.User{}
	for _, f := range fields {
		switch f {
		case auth.FieldID:
			out.ID = u.ID
		case auth.FieldEmail:
			out.Email = u.Email
		case auth.FieldPasswordHash:
			out.PasswordHash = u.PasswordHash
		case auth.FieldEmailVerified:
			out.EmailVerified = u.EmailVerified
		case auth.FieldRole:
			out.Role = u.Role
		case auth.FieldCreatedAt:
			out.CreatedAt = u.CreatedAt
		case auth.FieldUpdatedAt:
			out.UpdatedAt = u.UpdatedAt
		}
	}
	return out
}

// Compile-time interface checks.
var (
	_ auth.UserRepository          = (*UserRepository)(nil)
	_ auth.SecurityTokenRepository = (*SecurityTokenRepository)(nil)
)
