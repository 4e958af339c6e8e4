// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/keyward/keyward/internal/auth"
)

// MockSecurityTokenRepository is a mock implementation of auth.SecurityTokenRepository.
type MockSecurityTokenRepository struct {
	mock.Mock
}

// Upsert provides a mock function.
func (m *MockSecurityTokenRepository) Upsert(ctx context.Context, token *auth.SecurityToken) error {
	return m.Called(ctx, token).Error(0)
}

// Get provides a mock function.
func (m *MockSecurityTokenRepository) Get(ctx context.Context, userID ulid.ULID, purpose auth.Purpose) (*auth.SecurityToken, error) {
	ret := m.Called(ctx, userID, purpose)
	var token *auth.SecurityToken
	if ret.Get(0) != nil {
		token = ret.Get(0).(*auth.SecurityToken)
	}
	return token, ret.Error(1)
}

// Delete provides a mock function.
func (m *MockSecurityTokenRepository) Delete(ctx context.Context, userID ulid.ULID, purpose auth.Purpose, value string) (bool, error) {
	ret := m.Called(ctx, userID, purpose, value)
	return ret.Bool(0), ret.Error(1)
}

// Restore provides a mock function.
func (m *MockSecurityTokenRepository) Restore(ctx context.Context, token *auth.SecurityToken) (bool, error) {
	ret := m.Called(ctx, token)
	return ret.Bool(0), ret.Error(1)
}

// List provides a mock function.
func (m *MockSecurityTokenRepository) List(ctx context.Context) ([]*auth.SecurityToken, error) {
	ret := m.Called(ctx)
	var rows []*auth.SecurityToken
	if ret.Get(0) != nil {
		rows = ret.Get(0).([]*auth.SecurityToken)
	}
	return rows, ret.Error(1)
}

// NewMockSecurityTokenRepository creates a MockSecurityTokenRepository whose
// expectations are asserted when the test ends.
func NewMockSecurityTokenRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSecurityTokenRepository {
	m := &MockSecurityTokenRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.SecurityTokenRepository = (*MockSecurityTokenRepository)(nil)
