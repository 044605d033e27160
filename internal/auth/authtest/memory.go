// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

// Package authtest provides test doubles for the auth package.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/mysurvey/mysurvey/internal/auth"
)

// MemoryRepository is an in-memory auth.AccountRepository. Stored accounts are
// copied on the way in and out so callers cannot mutate repository state.
//
// Setting one of the *Err fields makes the matching method fail with it.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account

	FindErr           error
	CreateErr         error
	UpdatePasswordErr error
	SetResetErr       error
	FailedAttemptsErr error
	LastLoginErr      error
	SetActiveErr      error
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[ulid.ULID]*auth.Account)}
}

// Get returns a copy of the stored account, or nil.
func (r *MemoryRepository) Get(id ulid.ULID) *auth.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil
	}
	return clone(a)
}

// Put stores a copy of a, replacing any account with the same ID.
func (r *MemoryRepository) Put(a *auth.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = clone(a)
}

// Mutate applies fn to the stored account. It panics if the account is missing.
func (r *MemoryRepository) Mutate(id ulid.ULID, fn func(a *auth.Account)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.accounts[id])
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	for _, a := range r.accounts {
		if a.Email == auth.NormalizeEmail(email) {
			return clone(a), nil
		}
	}
	return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
}

func (r *MemoryRepository) FindByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, oops.With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(a), nil
}

func (r *MemoryRepository) FindByResetToken(_ context.Context, tokenHash string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	for _, a := range r.accounts {
		if a.ResetTokenHash != nil && *a.ResetTokenHash == tokenHash {
			return clone(a), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *MemoryRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	for _, a := range r.accounts {
		if a.Email == account.Email {
			return oops.With("email", account.Email).Wrap(auth.ErrDuplicateEmail)
		}
	}
	r.accounts[account.ID] = clone(account)
	return nil
}

func (r *MemoryRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	if r.UpdatePasswordErr != nil {
		return r.UpdatePasswordErr
	}
	return r.update(id, func(a *auth.Account) {
		a.PasswordHash = passwordHash
		a.ResetTokenHash = nil
		a.ResetExpiresAt = nil
	})
}

func (r *MemoryRepository) SetResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	if r.SetResetErr != nil {
		return r.SetResetErr
	}
	return r.update(id, func(a *auth.Account) {
		a.ResetTokenHash = &tokenHash
		a.ResetExpiresAt = &expiresAt
	})
}

func (r *MemoryRepository) ClearResetToken(_ context.Context, id ulid.ULID) error {
	return r.update(id, func(a *auth.Account) {
		a.ResetTokenHash = nil
		a.ResetExpiresAt = nil
	})
}

func (r *MemoryRepository) RehashPassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	if r.UpdatePasswordErr != nil {
		return r.UpdatePasswordErr
	}
	return r.update(id, func(a *auth.Account) {
		a.PasswordHash = passwordHash
	})
}

func (r *MemoryRepository) CompleteReset(_ context.Context, id ulid.ULID, tokenHash, passwordHash string, now time.Time) error {
	if r.UpdatePasswordErr != nil {
		return r.UpdatePasswordErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	pending := ok && a.ResetTokenHash != nil && *a.ResetTokenHash == tokenHash &&
		a.ResetExpiresAt != nil && a.ResetExpiresAt.After(now)
	if !pending {
		return oops.With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	a.PasswordHash = passwordHash
	a.ResetTokenHash = nil
	a.ResetExpiresAt = nil
	return nil
}

func (r *MemoryRepository) UpdateFailedAttempts(_ context.Context, id ulid.ULID, attempts int, lockedUntil *time.Time) error {
	if r.FailedAttemptsErr != nil {
		return r.FailedAttemptsErr
	}
	return r.update(id, func(a *auth.Account) {
		a.FailedAttempts = attempts
		a.LockedUntil = copyTime(lockedUntil)
	})
}

func (r *MemoryRepository) ResetFailedAttempts(_ context.Context, id ulid.ULID) error {
	if r.FailedAttemptsErr != nil {
		return r.FailedAttemptsErr
	}
	return r.update(id, func(a *auth.Account) {
		a.FailedAttempts = 0
		a.LockedUntil = nil
	})
}

func (r *MemoryRepository) UpdateLastLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	if r.LastLoginErr != nil {
		return r.LastLoginErr
	}
	return r.update(id, func(a *auth.Account) {
		a.LastLoginAt = &at
	})
}

func (r *MemoryRepository) SetActive(_ context.Context, id ulid.ULID, active bool) error {
	if r.SetActiveErr != nil {
		return r.SetActiveErr
	}
	return r.update(id, func(a *auth.Account) {
		a.Active = active
	})
}

func (r *MemoryRepository) update(id ulid.ULID, fn func(a *auth.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return oops.With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(a)
	return nil
}

func clone(a *auth.Account) *auth.Account {
	c := *a
	c.Avatar = copyString(a.Avatar)
	c.EmailVerifiedAt = copyTime(a.EmailVerifiedAt)
	c.LastLoginAt = copyTime(a.LastLoginAt)
	c.LockedUntil = copyTime(a.LockedUntil)
	c.ResetTokenHash = copyString(a.ResetTokenHash)
	c.ResetExpiresAt = copyTime(a.ResetExpiresAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ auth.AccountRepository = (*MemoryRepository)(nil)
