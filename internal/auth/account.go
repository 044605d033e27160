// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is an account's authorization role.
type Role string

// Roles, matching the values stored in the users table.
const (
	RoleAdmin   Role = "ADMIN"
	RoleCreator Role = "CREATOR"
	RoleViewer  Role = "VIEWER"
)

// DefaultRole is assigned to self-registered accounts.
const DefaultRole = RoleCreator

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCreator, RoleViewer:
		return true
	default:
		return false
	}
}

// ParseRole converts a stored or claimed role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", oops.Code("AUTH_INVALID_ROLE").With("role", s).Errorf("unknown role %q", s)
	}
	return r, nil
}

// Account is a user identity together with its credential and lockout state.
// PasswordHash and ResetTokenHash must never leave this package's callers;
// use Profile for anything returned to clients.
type Account struct {
	ID              ulid.ULID
	Email           string
	PasswordHash    string
	FirstName       string
	LastName        string
	Avatar          *string
	Role            Role
	Active          bool
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	LastLoginAt     *time.Time
	FailedAttempts  int
	LockedUntil     *time.Time
	ResetTokenHash  *string
	ResetExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewAccount creates an active account with the default role.
// The registration is expected to have been validated by NewRegistration.
func NewAccount(reg Registration, passwordHash string, now time.Time) (*Account, error) {
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}
	if reg.Email == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "email").Errorf("email cannot be empty")
	}
	now = now.UTC()
	return &Account{
		ID:           ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Email:        reg.Email,
		PasswordHash: passwordHash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Role:         DefaultRole,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Profile returns the client-facing view of the account.
func (a *Account) Profile() *Profile {
	return &Profile{
		ID:            a.ID.String(),
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Role:          a.Role,
		Avatar:        a.Avatar,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// Profile is an Account without credential material.
type Profile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Role          Role       `json:"role"`
	Avatar        *string    `json:"avatar,omitempty"`
	Active        bool       `json:"isActive"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// AccountRepository persists accounts. Lookups return an error wrapping
// ErrNotFound when nothing matches; Create returns one wrapping
// ErrDuplicateEmail when the email is taken.
type AccountRepository interface {
	// FindByEmail retrieves an account by email (case-insensitive).
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByID retrieves an account by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// FindByResetToken retrieves the account holding the given reset token digest,
	// regardless of whether the token has expired.
	FindByResetToken(ctx context.Context, tokenHash string) (*Account, error)

	// Create stores a new account.
	Create(ctx context.Context, account *Account) error

	// UpdatePassword replaces the password hash and clears any pending reset token.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetResetToken stores a reset token digest and its expiry.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ClearResetToken removes any pending reset token.
	ClearResetToken(ctx context.Context, id ulid.ULID) error

	// RehashPassword replaces the stored hash of an unchanged password, such
	// as after a work factor change. A pending reset token is left alone.
	RehashPassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// CompleteReset sets a new password hash and clears the reset token, but
	// only while tokenHash is still the pending digest and unexpired at now.
	// Otherwise it returns an error wrapping ErrNotFound.
	CompleteReset(ctx context.Context, id ulid.ULID, tokenHash, passwordHash string, now time.Time) error

	// UpdateFailedAttempts stores the failure counter and lockout expiry.
	UpdateFailedAttempts(ctx context.Context, id ulid.ULID, attempts int, lockedUntil *time.Time) error

	// ResetFailedAttempts zeroes the failure counter and clears the lockout.
	ResetFailedAttempts(ctx context.Context, id ulid.ULID) error

	// UpdateLastLogin stamps the last successful login.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// SetActive activates or deactivates an account.
	SetActive(ctx context.Context, id ulid.ULID, active bool) error
}
