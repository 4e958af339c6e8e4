// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/keyward/keyward/internal/auth"
)

// MockUserRepository is a mock implementation of auth.UserRepository.
// The variadic fields argument is passed to Called as a single slice.
type MockUserRepository struct {
	mock.Mock
}

// FindByIdentifier provides a mock function.
func (m *MockUserRepository) FindByIdentifier(ctx context.Context, field auth.IdentifierField, value string, fields ...auth.UserField) (*auth.User, error) {
	ret := m.Called(ctx, field, value, fields)

	if fn, ok := ret.Get(0).(func(context.Context, auth.IdentifierField, string, ...auth.UserField) (*auth.User, error)); ok {
		return fn(ctx, field, value, fields...)
	}
	var user *auth.User
	if ret.Get(0) != nil {
		user = ret.Get(0).(*auth.User)
	}
	return user, ret.Error(1)
}

// Create provides a mock function.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// Save provides a mock function.
func (m *MockUserRepository) Save(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// Delete provides a mock function.
func (m *MockUserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// DeleteTokensForUser provides a mock function.
func (m *MockUserRepository) DeleteTokensForUser(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// NewMockUserRepository creates a MockUserRepository whose expectations are
// asserted when the test ends.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.UserRepository = (*MockUserRepository)(nil)
