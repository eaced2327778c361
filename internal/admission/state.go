// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

// State owns all mutable admission state for one process: the lockdown gate,
// the connecting-session registry and the active-player registry. It is
// created at startup and shared by every component.
type State struct {
	Lockdown   *Lockdown
	Connecting *ConnectionRegistry
	Active     *ActivePlayers
}

// NewState creates empty admission state.
func NewState() *State {
	return &State{
		Lockdown:   &Lockdown{},
		Connecting: NewConnectionRegistry(),
		Active:     NewActivePlayers(),
	}
}

// BoundTo reports whether a live record (connecting or active) carries userID.
func (s *State) BoundTo(userID UserID) bool {
	if userID.IsZero() {
		return false
	}
	return s.Active.GetByUser(userID) != nil || s.Connecting.BoundTo(userID)
}

// Snapshot is a point-in-time view for status endpoints.
type Snapshot struct {
	Lockdown       bool   `json:"lockdown"`
	LockdownReason string `json:"lockdown_reason,omitempty"`
	Connecting     int    `json:"connecting"`
	Active         int    `json:"active"`
}

// Snapshot returns current counts and lockdown status.
func (s *State) Snapshot() Snapshot {
	reason, engaged := s.Lockdown.Reason()
	return Snapshot{
		Lockdown:       engaged,
		LockdownReason: reason,
		Connecting:     s.Connecting.Len(),
		Active:         s.Active.Len(),
	}
}
