// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"sync"

	"github.com/holomush/gatekeeper/internal/admission"
)

// LiveSet tracks the sessions the host reports as present. It answers
// liveness for the connection sweep when no external oracle is configured.
type LiveSet struct {
	mu  sync.RWMutex
	ids map[admission.SessionID]struct{}
}

var _ admission.LivenessOracle = (*LiveSet)(nil)

// NewLiveSet creates an empty set.
func NewLiveSet() *LiveSet {
	return &LiveSet{ids: make(map[admission.SessionID]struct{})}
}

// Mark records id as live.
func (s *LiveSet) Mark(id admission.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Unmark records id as gone.
func (s *LiveSet) Unmark(id admission.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Exists implements admission.LivenessOracle.
func (s *LiveSet) Exists(_ context.Context, id admission.SessionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok, nil
}
