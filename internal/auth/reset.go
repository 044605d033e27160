// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes      = 32 // 64 hex chars
	DefaultResetTokenTTL = 15 * time.Minute
)

// GenerateResetToken creates a random token and its digest.
// The plaintext goes to the account owner; only the digest is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken computes the SHA-256 digest under which a reset token is stored.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ResetNotifier delivers a password reset token to the account owner.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, profile *Profile, token string, expiresAt time.Time) error
}

// LogNotifier records reset requests in the log. It never logs the token.
type LogNotifier struct {
	Logger *slog.Logger
}

// NotifyPasswordReset implements ResetNotifier.
func (n LogNotifier) NotifyPasswordReset(ctx context.Context, profile *Profile, _ string, expiresAt time.Time) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset token issued; email delivery is not configured",
		"account_id", profile.ID,
		"expires_at", expiresAt,
	)
	return nil
}
