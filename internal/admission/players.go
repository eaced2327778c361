// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import (
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// ActivePlayers is the process-wide registry of Active player records,
// keyed by session id. Callers always receive copies.
type ActivePlayers struct {
	mu      sync.RWMutex
	players map[SessionID]*PlayerRecord
}

// NewActivePlayers creates an empty registry.
func NewActivePlayers() *ActivePlayers {
	return &ActivePlayers{
		players: make(map[SessionID]*PlayerRecord),
	}
}

// Activate stores the record under its session id and marks it Active.
// It does not check for other sessions of the same user.
func (p *ActivePlayers) Activate(record *PlayerRecord) *PlayerRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := record.Clone()
	stored.Phase = PhaseActive
	p.players[stored.SessionID] = stored
	return stored.Clone()
}

// Get returns a copy of the record for a session, or nil.
func (p *ActivePlayers) Get(id SessionID) *PlayerRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.players[id].Clone()
}

// GetByUser returns a copy of the first record bound to userID, or nil.
func (p *ActivePlayers) GetByUser(userID UserID) *PlayerRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, rec := range p.players {
		if rec.UserID == userID {
			return rec.Clone()
		}
	}
	return nil
}

// CountByUser returns how many Active records carry userID.
func (p *ActivePlayers) CountByUser(userID UserID) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, rec := range p.players {
		if rec.UserID == userID {
			n++
		}
	}
	return n
}

// Remove deletes the record for a session and returns it marked Removed.
func (p *ActivePlayers) Remove(id SessionID) (*PlayerRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.players[id]
	if !ok {
		slog.Debug("remove called for non-active session", "session_id", string(id))
		return nil, oops.Code("PLAYER_NOT_ACTIVE").
			With("session_id", string(id)).
			Wrapf(ErrNotFound, "no active player for session %s", id)
	}
	delete(p.players, id)
	rec.Phase = PhaseRemoved
	return rec, nil
}

// List returns copies of all active records.
func (p *ActivePlayers) List() []*PlayerRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*PlayerRecord, 0, len(p.players))
	for _, rec := range p.players {
		result = append(result, rec.Clone())
	}
	return result
}

// Len returns the number of active records.
func (p *ActivePlayers) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.players)
}
