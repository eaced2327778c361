// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import (
	"context"
	"log/slog"
)

// BindingLookup reports whether a user id is already bound to a live record.
type BindingLookup interface {
	BoundTo(userID UserID) bool
}

// DuplicateGuard rejects a resolved identity that already has a live record.
//
// The check is not atomic with the later commit of the new record: two
// attempts for the same identity that interleave across the collaborator
// calls between Check and commit can both pass. This window is accepted.
type DuplicateGuard struct {
	db      Database
	bound   BindingLookup
	relaxed bool
}

// NewDuplicateGuard creates a guard. In relaxed mode a bound identity gets one
// retry through the alternate identifier slot (variant 1) before rejection.
func NewDuplicateGuard(db Database, bound BindingLookup, relaxed bool) *DuplicateGuard {
	return &DuplicateGuard{db: db, bound: bound, relaxed: relaxed}
}

// Check allows the record, rejects it with KindDuplicateSession, or in relaxed
// mode rebinds record.UserID to the alternate account. The alternate may be
// zero, in which case a fresh account is created later.
func (g *DuplicateGuard) Check(ctx context.Context, record *PlayerRecord) error {
	userID := record.UserID
	if userID.IsZero() || !g.bound.BoundTo(userID) {
		return nil
	}
	if !g.relaxed {
		return DuplicateSession(userID)
	}

	alt, err := g.db.GetUserIDFromIdentifier(ctx, record.IdentityKey, 1)
	if err != nil {
		return fault("get alternate user id", err,
			"session_id", string(record.SessionID),
			"user_id", int64(userID),
		)
	}
	if !alt.IsZero() && g.bound.BoundTo(alt) {
		return DuplicateSession(userID)
	}

	slog.DebugContext(ctx, "duplicate identity, using alternate account",
		"session_id", string(record.SessionID),
		"user_id", int64(userID),
		"alternate_user_id", int64(alt),
	)
	record.UserID = alt
	return nil
}
