// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by repositories when an email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrInvalidToken is wrapped by every token verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Kind classifies an error for callers that need to render it.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error codes surfaced to callers.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeAccountInactive    = "AUTH_ACCOUNT_INACTIVE"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeIncorrectPassword  = "AUTH_INCORRECT_PASSWORD"
	CodeAccountMissing     = "AUTH_ACCOUNT_NOT_FOUND"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeResetTokenExpired  = "RESET_TOKEN_EXPIRED"
)

var codeKinds = map[string]Kind{
	CodeInvalidInput:       KindBadRequest,
	CodeEmailTaken:         KindConflict,
	CodeInvalidCredentials: KindUnauthorized,
	CodeAccountLocked:      KindUnauthorized,
	CodeAccountInactive:    KindUnauthorized,
	CodeInvalidToken:       KindUnauthorized,
	CodeIncorrectPassword:  KindBadRequest,
	CodeAccountMissing:     KindNotFound,
	CodeForbidden:          KindForbidden,
	CodeResetTokenInvalid:  KindBadRequest,
	CodeResetTokenExpired:  KindBadRequest,
}

// KindOf returns the kind of err. Errors without a known code are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	return codeKinds[CodeOf(err)]
}

// CodeOf returns the oops code carried by err, or "" if there is none.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}

// RetryAfter returns how long the caller should wait before retrying, when
// err carries that hint (as a lockout does).
func RetryAfter(err error) (time.Duration, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	d, ok := oopsErr.Context()["retry_after"].(time.Duration)
	return d, ok && d > 0
}
