// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import "sync/atomic"

// Lockdown is the process-wide admission gate. Once engaged it stays engaged
// for the lifetime of the process. Reads are lock free.
type Lockdown struct {
	reason atomic.Pointer[string]
}

// Engage sets the lockdown reason. The first call wins; it reports whether
// this call was the one that engaged the gate.
func (l *Lockdown) Engage(reason string) bool {
	return l.reason.CompareAndSwap(nil, &reason)
}

// Reason returns the lockdown reason and whether lockdown is engaged.
func (l *Lockdown) Reason() (string, bool) {
	p := l.reason.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Engaged reports whether lockdown is in effect.
func (l *Lockdown) Engaged() bool {
	return l.reason.Load() != nil
}

// Check returns a KindLockdownActive rejection when engaged, nil otherwise.
func (l *Lockdown) Check() *Rejection {
	if reason, ok := l.Reason(); ok {
		return LockdownActive(reason)
	}
	return nil
}
