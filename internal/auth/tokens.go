// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultTokenIssuer     = "mysurvey"
)

// TokenUse distinguishes access tokens from refresh tokens.
type TokenUse string

// Token uses.
const (
	TokenUseAccess  TokenUse = "access"
	TokenUseRefresh TokenUse = "refresh"
)

// Claims are the signed contents of an access or refresh token.
type Claims struct {
	Email string   `json:"email"`
	Role  Role     `json:"role"`
	Use   TokenUse `json:"token_use"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).With("sub", c.Subject).Wrap(ErrInvalidToken)
	}
	return id, nil
}

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// TokenConfig configures a TokenIssuer. The two secrets must differ so that a
// leaked access secret cannot forge refresh tokens.
type TokenConfig struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
	Issuer        string

	// Clock overrides time.Now for issuing and expiry checks.
	Clock func() time.Time
}

// TokenIssuer mints and verifies HS256 JWTs.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("refresh token secret is required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("access and refresh token secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultTokenIssuer
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{cfg: cfg, now: now}, nil
}

// Issue mints a token pair for the account.
func (t *TokenIssuer) Issue(a *Account) (TokenPair, error) {
	now := t.now()
	accessExp := now.Add(t.cfg.AccessTTL)
	refreshExp := now.Add(t.cfg.RefreshTTL)

	access, err := t.sign(a, TokenUseAccess, t.cfg.AccessSecret, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(a, TokenUseRefresh, t.cfg.RefreshSecret, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp.UTC(),
		RefreshExpiresAt: refreshExp.UTC(),
	}, nil
}

func (t *TokenIssuer) sign(a *Account, use TokenUse, secret []byte, now, exp time.Time) (string, error) {
	claims := Claims{
		Email: a.Email,
		Role:  a.Role,
		Use:   use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").With("token_use", string(use)).Wrap(err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and returns its claims.
func (t *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return t.verify(token, TokenUseAccess, t.cfg.AccessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (t *TokenIssuer) VerifyRefresh(token string) (*Claims, error) {
	return t.verify(token, TokenUseRefresh, t.cfg.RefreshSecret)
}

func (t *TokenIssuer) verify(token string, use TokenUse, secret []byte) (*Claims, error) {
	if token == "" {
		return nil, oops.Code(CodeInvalidToken).With("token_use", string(use)).Wrap(ErrInvalidToken)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).
			With("token_use", string(use)).
			With("reason", err.Error()).
			Wrap(ErrInvalidToken)
	}
	if !parsed.Valid || claims.Use != use {
		return nil, oops.Code(CodeInvalidToken).
			With("token_use", string(use)).
			With("claimed_use", string(claims.Use)).
			Wrap(ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return nil, oops.Code(CodeInvalidToken).With("role", string(claims.Role)).Wrap(ErrInvalidToken)
	}
	return claims, nil
}
