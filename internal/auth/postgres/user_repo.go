// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// userColumns whitelists the projectable columns.
var userColumns = map[auth.UserField]string{
	auth.FieldID:            "id",
	auth.FieldEmail:         "email",
	auth.FieldPasswordHash:  "password_hash",
	auth.FieldEmailVerified: "email_verified",
	auth.FieldRole:          "role",
	auth.FieldCreatedAt:     "created_at",
	auth.FieldUpdatedAt:     "updated_at",
}

var allUserFields = []auth.UserField{
	auth.FieldID, auth.FieldEmail, auth.FieldPasswordHash, auth.FieldEmailVerified,
	auth.FieldRole, auth.FieldCreatedAt, auth.FieldUpdatedAt,
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByIdentifier loads a user by id or email (case-insensitive), selecting
// only the requested fields. No fields selects every column.
func (r *UserRepository) FindByIdentifier(ctx context.Context, field auth.IdentifierField, value string, fields ...auth.UserField) (*auth.User, error) {
	var where string
	switch field {
	case auth.ByID:
		where = "id = $1"
	case auth.ByEmail:
		where = "LOWER(email) = LOWER($1)"
	default:
		return nil, oops.Code("USER_LOOKUP_INVALID").With("field", string(field)).Errorf("unsupported identifier")
	}

	if len(fields) == 0 {
		fields = allUserFields
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		col, ok := userColumns[f]
		if !ok {
			return nil, oops.Code("USER_LOOKUP_INVALID").With("field", string(f)).Errorf("unknown user field")
		}
		cols = append(cols, col)
	}

	row := r.db.QueryRow(ctx, "SELECT "+strings.Join(cols, ", ")+" FROM users WHERE "+where, value)
	user, err := scanUser(row, fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With(string(field), value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user").
			With(string(field), value).
			Wrap(err)
	}
	return user, nil
}

// Create stores a new user. A duplicate email yields USER_EMAIL_TAKEN.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, email_verified, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code(auth.CodeEmailTaken).
				With("email", user.Email).
				Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// Save writes the mutable columns of an existing user.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) error {
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now().UTC()
	}
	result, err := r.db.Exec(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, email_verified = $4, role = $5, updated_at = $6
		WHERE id = $1
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		string(user.Role),
		user.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_SAVE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a user. Its security tokens go with it through the foreign key.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteTokensForUser removes every security token owned by the user.
func (r *UserRepository) DeleteTokensForUser(ctx context.Context, id ulid.ULID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM security_tokens WHERE user_id = $1`, id.String()); err != nil {
		return oops.Code("USER_TOKENS_DELETE_FAILED").
			With("operation", "delete security tokens by user").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

// scanUser scans the projected columns, in fields order, into a User.
// Callers handle pgx.ErrNoRows.
func scanUser(row pgx.Row, fields []auth.UserField) (*auth.User, error) {
	var (
		user         auth.User
		idStr        string
		role         string
		passwordHash pgtype.Text
	)
	dest := make([]any, len(fields))
	for i, f := range fields {
		switch f {
		case auth.FieldID:
			dest[i] = &idStr
		case auth.FieldEmail:
			dest[i] = &user.Email
		case auth.FieldPasswordHash:
			dest[i] = &passwordHash
		case auth.FieldEmailVerified:
			dest[i] = &user.EmailVerified
		case auth.FieldRole:
			dest[i] = &role
		case auth.FieldCreatedAt:
			dest[i] = &user.CreatedAt
		case auth.FieldUpdatedAt:
			dest[i] = &user.UpdatedAt
		}
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("USER_SCAN_FAILED").With("operation", "scan user").Wrap(err)
	}

	if idStr != "" {
		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
		}
		user.ID = id
	}
	if passwordHash.Valid {
		user.PasswordHash = passwordHash.String
	}
	user.Role = auth.Role(role)
	return &user, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
