// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/admission"
)

func TestDuplicateGuard_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("unbound user passes", func(t *testing.T) {
		state := admission.NewState()
		g := admission.NewDuplicateGuard(newMockDatabase(t), state, false)

		assert.NoError(t, g.Check(ctx, resolved("s2", 42)))
	})

	t.Run("zero user id always passes", func(t *testing.T) {
		state := admission.NewState()
		state.Active.Activate(resolved("7", 0))
		g := admission.NewDuplicateGuard(newMockDatabase(t), state, false)

		assert.NoError(t, g.Check(ctx, resolved("s2", 0)))
	})

	t.Run("active user is rejected", func(t *testing.T) {
		state := admission.NewState()
		state.Active.Activate(resolved("7", 42))
		g := admission.NewDuplicateGuard(newMockDatabase(t), state, false)

		err := g.Check(ctx, resolved("s2", 42))
		rej, ok := admission.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, admission.KindDuplicateSession, rej.Kind)
		assert.Equal(t, admission.UserID(42), rej.UserID)
	})

	t.Run("resolved connecting user is rejected", func(t *testing.T) {
		state := admission.NewState()
		state.Connecting.Commit(resolved("s1", 42))
		g := admission.NewDuplicateGuard(newMockDatabase(t), state, false)

		rej, _ := admission.AsRejection(g.Check(ctx, resolved("s2", 42)))
		assert.Equal(t, admission.KindDuplicateSession, rej.Kind)
	})

	t.Run("relaxed mode switches to free alternate", func(t *testing.T) {
		state := admission.NewState()
		state.Active.Activate(resolved("7", 42))
		db := newMockDatabase(t)
		g := admission.NewDuplicateGuard(db, state, true)

		db.On("GetUserIDFromIdentifier", ctx, "abc123", 1).Return(admission.UserID(43), nil)

		rec := resolved("s2", 42)
		require.NoError(t, g.Check(ctx, rec))
		assert.Equal(t, admission.UserID(43), rec.UserID)
	})

	t.Run("relaxed mode without alternate account gets zero id", func(t *testing.T) {
		state := admission.NewState()
		state.Active.Activate(resolved("7", 42))
		db := newMockDatabase(t)
		g := admission.NewDuplicateGuard(db, state, true)

		db.On("GetUserIDFromIdentifier", ctx, "abc123", 1).Return(admission.UserID(0), nil)

		rec := resolved("s2", 42)
		require.NoError(t, g.Check(ctx, rec))
		assert.True(t, rec.UserID.IsZero())
	})

	t.Run("relaxed mode rejects when alternate is also bound", func(t *testing.T) {
		state := admission.NewState()
		state.Active.Activate(resolved("7", 42))
		state.Active.Activate(resolved("8", 43))
		db := newMockDatabase(t)
		g := admission.NewDuplicateGuard(db, state, true)

		db.On("GetUserIDFromIdentifier", ctx, "abc123", 1).Return(admission.UserID(43), nil)

		rej, _ := admission.AsRejection(g.Check(ctx, resolved("s2", 42)))
		assert.Equal(t, admission.KindDuplicateSession, rej.Kind)
		assert.Equal(t, admission.UserID(42), rej.UserID)
	})

	t.Run("relaxed lookup failure is a fault", func(t *testing.T) {
		state := admission.NewState()
		state.Active.Activate(resolved("7", 42))
		db := newMockDatabase(t)
		g := admission.NewDuplicateGuard(db, state, true)

		db.On("GetUserIDFromIdentifier", ctx, "abc123", 1).Return(admission.UserID(0), errors.New("db gone"))

		rej, _ := admission.AsRejection(g.Check(ctx, resolved("s2", 42)))
		assert.Equal(t, admission.KindLoadFault, rej.Kind)
	})
}
