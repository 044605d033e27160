// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth

import (
	"time"
)

// Lockout defaults.
const (
	// DefaultLockoutThreshold is the number of consecutive failures that triggers a lockout.
	DefaultLockoutThreshold = 5

	// DefaultLockoutDuration is the time an account stays locked.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutPolicy suspends authentication after repeated failed logins.
//
// An account is locked while LockedUntil is in the future. Expiry is checked
// lazily on the next login attempt; there is no timer.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the policy with default threshold and duration.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

func (p LockoutPolicy) threshold() int {
	if p.Threshold <= 0 {
		return DefaultLockoutThreshold
	}
	return p.Threshold
}

func (p LockoutPolicy) duration() time.Duration {
	if p.Duration <= 0 {
		return DefaultLockoutDuration
	}
	return p.Duration
}

// IsLocked returns true if the account's lockout expiry is after now.
func (p LockoutPolicy) IsLocked(a *Account, now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// Remaining returns how long the account stays locked, or zero.
func (p LockoutPolicy) Remaining(a *Account, now time.Time) time.Duration {
	if !p.IsLocked(a, now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}

// Release clears an elapsed lockout together with its failure counter.
// It reports whether the account changed.
func (p LockoutPolicy) Release(a *Account, now time.Time) bool {
	if a.LockedUntil == nil || a.LockedUntil.After(now) {
		return false
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = now
	return true
}

// RecordFailure increments the failure counter and locks the account once the
// threshold is reached. It reports whether this failure started a lockout.
func (p LockoutPolicy) RecordFailure(a *Account, now time.Time) bool {
	wasLocked := p.IsLocked(a, now)
	a.FailedAttempts++
	a.UpdatedAt = now
	if a.FailedAttempts < p.threshold() {
		return false
	}
	until := now.Add(p.duration())
	a.LockedUntil = &until
	return !wasLocked
}

// RecordSuccess resets the failure counter and lockout.
func (p LockoutPolicy) RecordSuccess(a *Account, now time.Time) {
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = now
}
