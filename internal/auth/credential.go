// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth

// CredentialKind enumerates the supported authentication schemes.
type CredentialKind int

// Credential kinds.
const (
	// CredentialPassword is an email and password pair.
	CredentialPassword CredentialKind = iota + 1
	// CredentialAccessToken is a bearer access token.
	CredentialAccessToken
	// CredentialRefreshToken is a refresh token presented to mint a new pair.
	CredentialRefreshToken
)

// String returns the scheme name.
func (k CredentialKind) String() string {
	switch k {
	case CredentialPassword:
		return "password"
	case CredentialAccessToken:
		return "access_token"
	case CredentialRefreshToken:
		return "refresh_token"
	default:
		return "unknown"
	}
}

// Credential is something presented to prove identity.
type Credential struct {
	Kind   CredentialKind
	Email  string
	Secret string
}

// PasswordCredential builds a CredentialPassword.
func PasswordCredential(email, password string) Credential {
	return Credential{Kind: CredentialPassword, Email: email, Secret: password}
}

// AccessTokenCredential builds a CredentialAccessToken.
func AccessTokenCredential(token string) Credential {
	return Credential{Kind: CredentialAccessToken, Secret: token}
}

// RefreshTokenCredential builds a CredentialRefreshToken.
func RefreshTokenCredential(token string) Credential {
	return Credential{Kind: CredentialRefreshToken, Secret: token}
}
