// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import (
	"maps"
	"slices"
	"strconv"
	"time"
)

// SessionID is the host-assigned transient session id.
type SessionID string

// UserID is the durable user id. Zero means "not resolved yet".
type UserID int64

// String renders the id for logs and messages.
func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// IsZero reports whether the id is unresolved.
func (u UserID) IsZero() bool {
	return u == 0
}

// Phase is the lifecycle phase of a session or player record.
type Phase int

// Lifecycle phases.
const (
	PhaseConnecting Phase = iota
	PhaseJoining
	PhaseActive
	PhaseRemoved
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseJoining:
		return "joining"
	case PhaseActive:
		return "active"
	case PhaseRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// PlayerRecord is the resolved identity of a connecting or active player.
type PlayerRecord struct {
	UserID      UserID
	IdentityKey string
	SessionID   SessionID
	Username    string
	Tokens      []string
	Identifiers map[string]string // kind -> value, namespace prefix stripped
	Phase       Phase
	ConnectedAt time.Time
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (r *PlayerRecord) Clone() *PlayerRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Tokens = slices.Clone(r.Tokens)
	c.Identifiers = maps.Clone(r.Identifiers)
	return &c
}

// ConnectingSession is a registry entry for a session that has not joined yet.
type ConnectingSession struct {
	ID        SessionID
	CreatedAt time.Time
	Phase     Phase
	Record    *PlayerRecord // nil while identity resolution is in flight
}

// BanRecord is an active ban. Only its presence matters to the pipeline;
// the fields exist for message formatting.
type BanRecord struct {
	UserID   UserID
	Reason   string
	BannedAt time.Time
	UnbanAt  *time.Time // nil for permanent bans
}

// Permanent reports whether the ban has no expiry.
func (b *BanRecord) Permanent() bool {
	return b.UnbanAt == nil
}
