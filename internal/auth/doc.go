// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

// Package auth provides account authentication for MySurvey.
//
// # Domain Types
//
// Accounts are created with NewAccount from a Registration built by
// NewRegistration, which validates and normalizes the input. Profile is the
// outward view of an Account and never carries the password hash.
//
// # Collaborators
//
//   - PasswordHasher - bcrypt hashing with a tunable cost
//   - LockoutPolicy - failed-login counting and temporary suspension
//   - TokenIssuer - HS256 access and refresh tokens with separate secrets
//   - AccountRepository - persistence, implemented in auth/postgres
//
// # Service
//
// Service coordinates the collaborators for register, login, token refresh,
// password change and the forgot/reset password flow. Errors carry oops codes;
// KindOf maps them to the categories callers render.
package auth
