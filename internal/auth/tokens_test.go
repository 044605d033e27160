// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysurvey/mysurvey/internal/auth"
	"github.com/mysurvey/mysurvey/internal/auth/authtest"
	"github.com/mysurvey/mysurvey/pkg/errutil"
)

var (
	testAccessSecret  = []byte("access-secret-for-tests-0123456789")
	testRefreshSecret = []byte("refresh-secret-for-tests-987654321")
)

func newTestIssuer(t *testing.T, clock *authtest.Clock) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  testAccessSecret,
		AccessTTL:     15 * time.Minute,
		RefreshSecret: testRefreshSecret,
		RefreshTTL:    7 * 24 * time.Hour,
		Clock:         clock.Now,
	})
	require.NoError(t, err)
	return issuer
}

func testAccount() *auth.Account {
	return &auth.Account{
		ID:     ulid.Make(),
		Email:  "a@x.com",
		Role:   auth.RoleCreator,
		Active: true,
	}
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	tests := []struct {
		name        string
		cfg         auth.TokenConfig
		expectError string
	}{
		{"missing access secret", auth.TokenConfig{RefreshSecret: testRefreshSecret}, "access token secret"},
		{"missing refresh secret", auth.TokenConfig{AccessSecret: testAccessSecret}, "refresh token secret"},
		{"equal secrets", auth.TokenConfig{AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret}, "must differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer, err := auth.NewTokenIssuer(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, issuer)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	clock := authtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := newTestIssuer(t, clock)
	account := testAccount()

	pair, err := issuer.Issue(account)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, clock.Now().Add(15*time.Minute), pair.AccessExpiresAt)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), pair.RefreshExpiresAt)

	t.Run("access token verifies as access", func(t *testing.T) {
		claims, err := issuer.VerifyAccess(pair.AccessToken)
		require.NoError(t, err)
		id, err := claims.AccountID()
		require.NoError(t, err)
		assert.Equal(t, account.ID, id)
		assert.Equal(t, account.Email, claims.Email)
		assert.Equal(t, auth.RoleCreator, claims.Role)
		assert.Equal(t, auth.TokenUseAccess, claims.Use)
		assert.Equal(t, auth.DefaultTokenIssuer, claims.Issuer)
	})

	t.Run("refresh token verifies as refresh", func(t *testing.T) {
		claims, err := issuer.VerifyRefresh(pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, auth.TokenUseRefresh, claims.Use)
	})

	t.Run("tokens are not interchangeable", func(t *testing.T) {
		_, err := issuer.VerifyRefresh(pair.AccessToken)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
		_, err = issuer.VerifyAccess(pair.RefreshToken)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("each issue has a unique jti", func(t *testing.T) {
		again, err := issuer.Issue(account)
		require.NoError(t, err)
		first, err := issuer.VerifyAccess(pair.AccessToken)
		require.NoError(t, err)
		second, err := issuer.VerifyAccess(again.AccessToken)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})
}

func TestTokenIssuer_Expiry(t *testing.T) {
	clock := authtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := newTestIssuer(t, clock)

	pair, err := issuer.Issue(testAccount())
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	_, err = issuer.VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)

	_, err = issuer.VerifyRefresh(pair.RefreshToken)
	assert.NoError(t, err, "refresh token outlives access token")
}

func TestTokenIssuer_RejectsForgedTokens(t *testing.T) {
	clock := authtest.NewClock(time.Now())
	issuer := newTestIssuer(t, clock)
	account := testAccount()

	sign := func(method jwt.SigningMethod, key any, claims auth.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := auth.Claims{
		Email: account.Email,
		Role:  account.Role,
		Use:   auth.TokenUseAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.DefaultTokenIssuer,
			Subject:   account.ID.String(),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}

	noExp := valid
	noExp.ExpiresAt = nil
	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	badRole := valid
	badRole.Role = "ROOT"

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other-secret"), valid)},
		{"signed with refresh secret", sign(jwt.SigningMethodHS256, testRefreshSecret, valid)},
		{"alg none", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid)},
		{"HS512", sign(jwt.SigningMethodHS512, testAccessSecret, valid)},
		{"missing expiry", sign(jwt.SigningMethodHS256, testAccessSecret, noExp)},
		{"wrong issuer", sign(jwt.SigningMethodHS256, testAccessSecret, wrongIssuer)},
		{"unknown role", sign(jwt.SigningMethodHS256, testAccessSecret, badRole)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := issuer.VerifyAccess(tt.token)
			require.Error(t, err)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}

	t.Run("control: correctly signed token verifies", func(t *testing.T) {
		_, err := issuer.VerifyAccess(sign(jwt.SigningMethodHS256, testAccessSecret, valid))
		assert.NoError(t, err)
	})
}

func TestClaims_AccountID_InvalidSubject(t *testing.T) {
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "nope"}}
	_, err := claims.AccountID()
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
