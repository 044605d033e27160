// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

// Package mocks provides testify mocks for auth interfaces.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/mysurvey/mysurvey/internal/auth"
)

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) bool {
	return m.Called(password, hash).Bool(0)
}

func (m *MockPasswordHasher) NeedsRehash(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockTokenService is a mock auth.TokenService.
type MockTokenService struct {
	mock.Mock
}

// NewMockTokenService creates a mock that asserts its expectations on cleanup.
func NewMockTokenService(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokenService {
	m := &MockTokenService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenService) Issue(a *auth.Account) (auth.TokenPair, error) {
	args := m.Called(a)
	return args.Get(0).(auth.TokenPair), args.Error(1)
}

func (m *MockTokenService) VerifyAccess(token string) (*auth.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*auth.Claims)
	return claims, args.Error(1)
}

func (m *MockTokenService) VerifyRefresh(token string) (*auth.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*auth.Claims)
	return claims, args.Error(1)
}

var (
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.TokenService   = (*MockTokenService)(nil)
)
