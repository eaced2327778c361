// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import "context"

// Database is the user, ban and token store consulted during admission.
type Database interface {
	// CreateUser inserts a new user and returns its durable id.
	CreateUser(ctx context.Context, username string, identifiers map[string]string) (UserID, error)

	// GetUserIDFromIdentifier returns the user id registered for an identity
	// key, or zero when none exists. variant selects among several accounts
	// sharing the same key (0 is the primary account, 1 the alternate slot).
	GetUserIDFromIdentifier(ctx context.Context, identityKey string, variant int) (UserID, error)

	// UpdateTokens records the session's current token set. userID may be zero.
	UpdateTokens(ctx context.Context, userID UserID, tokens []string) error

	// IsBanned returns the active ban for a user, or nil.
	IsBanned(ctx context.Context, userID UserID) (*BanRecord, error)
}

// PlayerStore persists player records on save and logout.
type PlayerStore interface {
	SavePlayer(ctx context.Context, record *PlayerRecord, logout bool) error
}

// IdentityProvider exposes the platform identity the host attached to a session.
type IdentityProvider interface {
	// License returns the raw platform license (e.g. "license:abc123").
	License(id SessionID) (string, bool)
	// Identifiers returns the session's secondary identifiers ("steam:...", ...).
	Identifiers(id SessionID) []string
	// Tokens returns the session's hardware/client tokens.
	Tokens(id SessionID) []string
	// Username returns the display name the session connected with.
	Username(id SessionID) string
}

// LivenessOracle answers whether a transient session still exists on the host.
type LivenessOracle interface {
	Exists(ctx context.Context, id SessionID) (bool, error)
}

// Disconnector asks the host to drop a session with a reason shown to the player.
type Disconnector interface {
	Disconnect(id SessionID, reason string)
}

// Messages renders rejections for players.
type Messages interface {
	Format(lang string, r *Rejection) string
}

// Observer receives pipeline events for metrics. Implementations must be safe
// for concurrent use.
type Observer interface {
	AdmissionOutcome(outcome string)
	ConnectingSessions(n int)
	ActivePlayers(n int)
	SweepRemoved(n int)
	PlayerSaved(ok bool)
	LockdownEngaged()
}

type nopObserver struct{}

func (nopObserver) AdmissionOutcome(string) {}
func (nopObserver) ConnectingSessions(int)  {}
func (nopObserver) ActivePlayers(int)       {}
func (nopObserver) SweepRemoved(int)        {}
func (nopObserver) PlayerSaved(bool)        {}
func (nopObserver) LockdownEngaged()        {}
