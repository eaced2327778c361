// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge_test

import (
	"context"

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
