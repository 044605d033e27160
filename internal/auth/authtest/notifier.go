// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/mysurvey/mysurvey/internal/auth"
)

// Notifier captures password reset tokens instead of delivering them.
type Notifier struct {
	mu     sync.Mutex
	Err    error
	tokens map[string]string
}

// NotifyPasswordReset records the token under the profile's email.
func (n *Notifier) NotifyPasswordReset(_ context.Context, profile *auth.Profile, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[profile.Email] = token
	return n.Err
}

// Token returns the last token sent to email.
func (n *Notifier) Token(email string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	tok, ok := n.tokens[email]
	return tok, ok
}

// Count returns how many distinct addresses received tokens.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tokens)
}
