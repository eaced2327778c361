// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func TestKind_StringAndCode(t *testing.T) {
	tests := []struct {
		kind admission.Kind
		name string
		code string
	}{
		{admission.KindNoLicense, "no_license", admission.CodeNoLicense},
		{admission.KindDuplicateSession, "duplicate_session", admission.CodeDuplicateSession},
		{admission.KindBanned, "banned", admission.CodeBanned},
		{admission.KindLockdownActive, "lockdown", admission.CodeLockdown},
		{admission.KindLoadFault, "load_fault", admission.CodeLoadFault},
		{admission.Kind(0), "unknown", "ADMISSION_UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			assert.Equal(t, tt.code, tt.kind.Code())
		})
	}
}

func TestRejection_Expected(t *testing.T) {
	assert.True(t, admission.NoLicense().Expected())
	assert.True(t, admission.DuplicateSession(42).Expected())
	assert.True(t, admission.Banned(&admission.BanRecord{UserID: 7}).Expected())
	assert.True(t, admission.LockdownActive("bye").Expected())
	assert.False(t, admission.LoadFault(errors.New("boom")).Expected())
}

func TestRejection_CarriesKindSpecificFields(t *testing.T) {
	dup := admission.DuplicateSession(42)
	assert.Equal(t, admission.UserID(42), dup.UserID)
	assert.Contains(t, dup.Error(), "42")

	ban := &admission.BanRecord{UserID: 7, Reason: "cheating"}
	banned := admission.Banned(ban)
	assert.Same(t, ban, banned.Ban)
	assert.Equal(t, admission.UserID(7), banned.UserID)

	lock := admission.LockdownActive("server restarting")
	assert.Contains(t, lock.Error(), "server restarting")
}

func TestRejection_LoadFaultUnwrapsCause(t *testing.T) {
	cause := oops.Code("DB_DOWN").Errorf("connection refused")
	rej := admission.LoadFault(cause)

	assert.ErrorIs(t, rej, cause)
	assert.Contains(t, rej.Error(), "connection refused")
	errutil.AssertErrorCode(t, rej, admission.CodeLoadFault)
}

func TestAsRejection(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		rej, ok := admission.AsRejection(nil)
		assert.False(t, ok)
		assert.Nil(t, rej)
	})

	t.Run("wrapped rejection", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", admission.NoLicense())
		rej, ok := admission.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, admission.KindNoLicense, rej.Kind)
	})

	t.Run("foreign error becomes load fault", func(t *testing.T) {
		cause := errors.New("boom")
		rej, ok := admission.AsRejection(cause)
		require.True(t, ok)
		assert.Equal(t, admission.KindLoadFault, rej.Kind)
		assert.ErrorIs(t, rej, cause)
	})
}
