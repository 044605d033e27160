// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/mysurvey/mysurvey/internal/auth"
)

// poolIface is the subset of pgxpool.Pool used by repositories.
// pgxmock.PgxPoolIface satisfies it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `
	id, email, password_hash, first_name, last_name, avatar, role,
	is_active, email_verified, email_verified_at, last_login_at,
	failed_login_attempts, locked_until, reset_token_hash, reset_token_expires_at,
	created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
	now  func() time.Time
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool, now: time.Now}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, a *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		a.ID.String(),
		a.Email,
		a.PasswordHash,
		a.FirstName,
		a.LastName,
		a.Avatar,
		string(a.Role),
		a.Active,
		a.EmailVerified,
		a.EmailVerifiedAt,
		a.LastLoginAt,
		a.FailedAttempts,
		a.LockedUntil,
		a.ResetTokenHash,
		a.ResetExpiresAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EMAIL_EXISTS").
				With("email", a.Email).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", a.Email).
			Wrap(err)
	}
	return nil
}

// FindByID retrieves an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id.String())
	return r.findOne(row, "id", id.String())
}

// FindByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return r.findOne(row, "email", email)
}

// FindByResetToken retrieves the account holding a reset token digest.
func (r *AccountRepository) FindByResetToken(ctx context.Context, tokenHash string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE reset_token_hash = $1`, tokenHash)
	// The digest is a credential and stays out of error context.
	return r.findOne(row, "lookup", "reset_token")
}

func (r *AccountRepository) findOne(row pgx.Row, key, value string) (*auth.Account, error) {
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "get account").
			With(key, value).
			Wrap(err)
	}
	return account, nil
}

// UpdatePassword replaces the password hash and clears any pending reset token.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.exec(ctx, "update password", id, `
		UPDATE users SET
			password_hash = $2,
			reset_token_hash = NULL,
			reset_token_expires_at = NULL,
			updated_at = $3
		WHERE id = $1
	`, passwordHash, r.now())
}

// SetResetToken stores a reset token digest and expiry, replacing any earlier one.
func (r *AccountRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return r.exec(ctx, "set reset token", id, `
		UPDATE users SET
			reset_token_hash = $2,
			reset_token_expires_at = $3,
			updated_at = $4
		WHERE id = $1
	`, tokenHash, expiresAt, r.now())
}

// ClearResetToken removes any pending reset token.
func (r *AccountRepository) ClearResetToken(ctx context.Context, id ulid.ULID) error {
	return r.exec(ctx, "clear reset token", id, `
		UPDATE users SET
			reset_token_hash = NULL,
			reset_token_expires_at = NULL,
			updated_at = $2
		WHERE id = $1
	`, r.now())
}

// RehashPassword replaces the hash of an unchanged password. Any pending reset
// token stays valid.
func (r *AccountRepository) RehashPassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.exec(ctx, "rehash password", id, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, passwordHash, r.now())
}

// CompleteReset sets the new password hash and consumes the reset token in one
// statement. It matches only the digest that was looked up and only while it
// is unexpired, so a concurrent or superseded reset affects no rows.
func (r *AccountRepository) CompleteReset(ctx context.Context, id ulid.ULID, tokenHash, passwordHash string, now time.Time) error {
	return r.exec(ctx, "complete reset", id, `
		UPDATE users SET
			password_hash = $2,
			reset_token_hash = NULL,
			reset_token_expires_at = NULL,
			updated_at = $3
		WHERE id = $1 AND reset_token_hash = $4 AND reset_token_expires_at > $3
	`, passwordHash, now, tokenHash)
}

// UpdateFailedAttempts stores the failure counter and lockout expiry.
func (r *AccountRepository) UpdateFailedAttempts(ctx context.Context, id ulid.ULID, attempts int, lockedUntil *time.Time) error {
	return r.exec(ctx, "update failed attempts", id, `
		UPDATE users SET
			failed_login_attempts = $2,
			locked_until = $3,
			updated_at = $4
		WHERE id = $1
	`, attempts, lockedUntil, r.now())
}

// ResetFailedAttempts zeroes the failure counter and clears the lockout.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id ulid.ULID) error {
	return r.exec(ctx, "reset failed attempts", id, `
		UPDATE users SET
			failed_login_attempts = 0,
			locked_until = NULL,
			updated_at = $2
		WHERE id = $1
	`, r.now())
}

// UpdateLastLogin stamps the last successful login.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.exec(ctx, "update last login", id, `
		UPDATE users SET last_login_at = $2, updated_at = $2
		WHERE id = $1
	`, at)
}

// SetActive activates or deactivates an account.
func (r *AccountRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return r.exec(ctx, "set active", id, `
		UPDATE users SET is_active = $2, updated_at = $3
		WHERE id = $1
	`, active, r.now())
}

// exec runs a single-row update keyed by id. Zero affected rows maps to
// auth.ErrNotFound.
func (r *AccountRepository) exec(ctx context.Context, operation string, id ulid.ULID, sql string, args ...any) error {
	result, err := r.pool.Exec(ctx, sql, append([]any{id.String()}, args...)...)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("operation", operation).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a       auth.Account
		idStr   string
		roleStr string
	)
	err := row.Scan(
		&idStr,
		&a.Email,
		&a.PasswordHash,
		&a.FirstName,
		&a.LastName,
		&a.Avatar,
		&roleStr,
		&a.Active,
		&a.EmailVerified,
		&a.EmailVerifiedAt,
		&a.LastLoginAt,
		&a.FailedAttempts,
		&a.LockedUntil,
		&a.ResetTokenHash,
		&a.ResetExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", idStr).Wrap(err)
	}
	a.Role, err = auth.ParseRole(roleStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", idStr).Wrap(err)
	}
	return &a, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
