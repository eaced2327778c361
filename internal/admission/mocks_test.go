// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/gatekeeper/internal/admission"
)

// MockDatabase is a mock for admission.Database.
type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) CreateUser(ctx context.Context, username string, identifiers map[string]string) (admission.UserID, error) {
	args := m.Called(ctx, username, identifiers)
	return args.Get(0).(admission.UserID), args.Error(1)
}

func (m *MockDatabase) GetUserIDFromIdentifier(ctx context.Context, identityKey string, variant int) (admission.UserID, error) {
	args := m.Called(ctx, identityKey, variant)
	return args.Get(0).(admission.UserID), args.Error(1)
}

func (m *MockDatabase) UpdateTokens(ctx context.Context, userID admission.UserID, tokens []string) error {
	args := m.Called(ctx, userID, tokens)
	return args.Error(0)
}

func (m *MockDatabase) IsBanned(ctx context.Context, userID admission.UserID) (*admission.BanRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*admission.BanRecord), args.Error(1)
}

// MockPlayerStore is a mock for admission.PlayerStore.
type MockPlayerStore struct {
	mock.Mock
}

func (m *MockPlayerStore) SavePlayer(ctx context.Context, record *admission.PlayerRecord, logout bool) error {
	args := m.Called(ctx, record, logout)
	return args.Error(0)
}

// MockIdentityProvider is a mock for admission.IdentityProvider.
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) License(id admission.SessionID) (string, bool) {
	args := m.Called(id)
	return args.String(0), args.Bool(1)
}

func (m *MockIdentityProvider) Identifiers(id admission.SessionID) []string {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockIdentityProvider) Tokens(id admission.SessionID) []string {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockIdentityProvider) Username(id admission.SessionID) string {
	args := m.Called(id)
	return args.String(0)
}

// MockLivenessOracle is a mock for admission.LivenessOracle.
type MockLivenessOracle struct {
	mock.Mock
}

func (m *MockLivenessOracle) Exists(ctx context.Context, id admission.SessionID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockDisconnector is a mock for admission.Disconnector.
type MockDisconnector struct {
	mock.Mock
}

func (m *MockDisconnector) Disconnect(id admission.SessionID, reason string) {
	m.Called(id, reason)
}

// expectationsChecked binds m to t and asserts its expectations at cleanup.
func expectationsChecked[M interface {
	Test(mock.TestingT)
	AssertExpectations(mock.TestingT) bool
}](t *testing.T, m M) M {
	t.Helper()
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func newMockDatabase(t *testing.T) *MockDatabase {
	return expectationsChecked(t, new(MockDatabase))
}

func newMockPlayerStore(t *testing.T) *MockPlayerStore {
	return expectationsChecked(t, new(MockPlayerStore))
}

func newMockIdentityProvider(t *testing.T) *MockIdentityProvider {
	return expectationsChecked(t, new(MockIdentityProvider))
}

func newMockLivenessOracle(t *testing.T) *MockLivenessOracle {
	return expectationsChecked(t, new(MockLivenessOracle))
}

func newMockDisconnector(t *testing.T) *MockDisconnector {
	return expectationsChecked(t, new(MockDisconnector))
}
