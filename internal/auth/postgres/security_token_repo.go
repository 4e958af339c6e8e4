// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// SecurityTokenRepository implements auth.SecurityTokenRepository using PostgreSQL.
type SecurityTokenRepository struct {
	db DB
}

// NewSecurityTokenRepository creates a new SecurityTokenRepository.
func NewSecurityTokenRepository(db DB) *SecurityTokenRepository {
	return &SecurityTokenRepository{db: db}
}

// Upsert inserts the row or replaces the token value of the slot's existing
// row. The unique (user_id, purpose) constraint makes this a single atomic write.
func (r *SecurityTokenRepository) Upsert(ctx context.Context, token *auth.SecurityToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO security_tokens (id, user_id, purpose, token_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET token_value = EXCLUDED.token_value, updated_at = EXCLUDED.updated_at
	`,
		token.ID.String(),
		token.UserID.String(),
		string(token.Purpose),
		token.TokenValue,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_UPSERT_FAILED").
			With("operation", "upsert security token").
			With("user_id", token.UserID.String()).
			With("purpose", string(token.Purpose)).
			Wrap(err)
	}
	return nil
}

// Get returns the slot's row.
func (r *SecurityTokenRepository) Get(ctx context.Context, userID ulid.ULID, purpose auth.Purpose) (*auth.SecurityToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, purpose, token_value, created_at, updated_at
		FROM security_tokens
		WHERE user_id = $1 AND purpose = $2
	`, userID.String(), string(purpose))

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get security token").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return token, nil
}

// Delete removes the slot's row only while it still holds value. The
// comparison and the delete are one statement, so two processes consuming
// the same token cannot both succeed and a re-issued token is never removed.
func (r *SecurityTokenRepository) Delete(ctx context.Context, userID ulid.ULID, purpose auth.Purpose, value string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM security_tokens WHERE user_id = $1 AND purpose = $2 AND token_value = $3
	`, userID.String(), string(purpose), value)
	if err != nil {
		return false, oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete security token").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Restore re-inserts a row whose consumption was rolled back. A token issued
// in the meantime keeps the slot.
func (r *SecurityTokenRepository) Restore(ctx context.Context, token *auth.SecurityToken) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO security_tokens (id, user_id, purpose, token_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, purpose) DO NOTHING
	`,
		token.ID.String(),
		token.UserID.String(),
		string(token.Purpose),
		token.TokenValue,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return false, oops.Code("TOKEN_RESTORE_FAILED").
			With("operation", "restore security token").
			With("user_id", token.UserID.String()).
			With("purpose", string(token.Purpose)).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns every row ordered by id.
func (r *SecurityTokenRepository) List(ctx context.Context) ([]*auth.SecurityToken, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, purpose, token_value, created_at, updated_at
		FROM security_tokens
		ORDER BY id
	`)
	if err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").With("operation", "list security tokens").Wrap(err)
	}
	defer rows.Close()

	var tokens []*auth.SecurityToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").With("operation", "iterate security tokens").Wrap(err)
	}
	return tokens, nil
}

// scanToken scans one security_tokens row. Callers handle pgx.ErrNoRows.
func scanToken(row pgx.Row) (*auth.SecurityToken, error) {
	var (
		idStr     string
		userIDStr string
		purpose   string
		value     string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&idStr, &userIDStr, &purpose, &value, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").With("operation", "scan security token").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}

	return &auth.SecurityToken{
		ID:         id,
		UserID:     userID,
		Purpose:    auth.Purpose(purpose),
		TokenValue: value,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SecurityTokenRepository = (*SecurityTokenRepository)(nil)
