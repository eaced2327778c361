// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the registry prunes vanished sessions.
const DefaultSweepInterval = 10 * time.Second

// ConnectionRegistry holds sessions that have not joined yet, keyed by
// transient session id.
type ConnectionRegistry struct {
	mu       sync.Mutex
	sessions map[SessionID]*ConnectingSession
	now      func() time.Time
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sessions: make(map[SessionID]*ConnectingSession),
		now:      time.Now,
	}
}

// Admit inserts a session at the Connecting phase. An existing entry for the
// same id is replaced.
func (r *ConnectionRegistry) Admit(id SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = &ConnectingSession{
		ID:        id,
		CreatedAt: r.now(),
		Phase:     PhaseConnecting,
	}
}

// Commit attaches a resolved record to the session's entry. If the entry has
// been swept or dropped in the meantime it is recreated.
func (r *ConnectionRegistry) Commit(record *PlayerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[record.SessionID]
	if !ok {
		entry = &ConnectingSession{
			ID:        record.SessionID,
			CreatedAt: r.now(),
			Phase:     PhaseConnecting,
		}
		r.sessions[record.SessionID] = entry
	}
	entry.Record = record.Clone()
}

// Discard removes an entry and returns it, or nil if none existed.
func (r *ConnectionRegistry) Discard(id SessionID) *ConnectingSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return entry
}

// Handoff rebinds a resolved entry from its transient id to the id the host
// assigned on join, advancing it to the Joining phase. It returns nil when
// no resolved entry exists under oldID.
func (r *ConnectionRegistry) Handoff(oldID, newID SessionID) *PlayerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[oldID]
	if !ok || entry.Record == nil {
		return nil
	}
	delete(r.sessions, oldID)

	entry.ID = newID
	entry.Phase = PhaseJoining
	entry.Record.SessionID = newID
	entry.Record.Phase = PhaseJoining
	r.sessions[newID] = entry

	return entry.Record.Clone()
}

// Take removes and returns the resolved record pending under id.
// Entries still resolving are left in place and nil is returned.
func (r *ConnectionRegistry) Take(id SessionID) *PlayerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok || entry.Record == nil {
		return nil
	}
	delete(r.sessions, id)
	return entry.Record
}

// Get returns a copy of the entry for id.
func (r *ConnectionRegistry) Get(id SessionID) (ConnectingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return ConnectingSession{}, false
	}
	c := *entry
	c.Record = entry.Record.Clone()
	return c, true
}

// BoundTo reports whether any resolved entry carries userID.
func (r *ConnectionRegistry) BoundTo(userID UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.sessions {
		if entry.Record != nil && entry.Record.UserID == userID {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (r *ConnectionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// connecting returns the ids of entries still in the Connecting phase.
func (r *ConnectionRegistry) connecting() []SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]SessionID, 0, len(r.sessions))
	for id, entry := range r.sessions {
		if entry.Phase == PhaseConnecting {
			ids = append(ids, id)
		}
	}
	return ids
}

// removeIfConnecting deletes id only if it is still in the Connecting phase.
func (r *ConnectionRegistry) removeIfConnecting(id SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok || entry.Phase != PhaseConnecting {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Sweep asks the oracle about every Connecting-phase entry and removes those
// whose session no longer exists. Joining entries are never touched. Oracle
// errors keep the entry. It returns the number of entries removed.
func (r *ConnectionRegistry) Sweep(ctx context.Context, oracle LivenessOracle) int {
	removed := 0
	for _, id := range r.connecting() {
		if ctx.Err() != nil {
			break
		}
		exists, err := oracle.Exists(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "liveness check failed, keeping session",
				"session_id", string(id),
				"error", err,
			)
			continue
		}
		if exists {
			continue
		}
		if r.removeIfConnecting(id) {
			removed++
			slog.DebugContext(ctx, "swept vanished connecting session", "session_id", string(id))
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (r *ConnectionRegistry) RunSweeper(ctx context.Context, oracle LivenessOracle, interval time.Duration, obs Observer) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if obs == nil {
		obs = nopObserver{}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ctx, oracle); n > 0 {
				obs.SweepRemoved(n)
			}
			obs.ConnectingSessions(r.Len())
		}
	}
}
