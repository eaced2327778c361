// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import "context"

// BanEnforcement looks up active bans.
type BanEnforcement struct {
	db Database
}

// NewBanEnforcement creates a ban checker.
func NewBanEnforcement(db Database) *BanEnforcement {
	return &BanEnforcement{db: db}
}

// Check returns a KindBanned rejection when the user has an active ban.
// A zero user id has no account and therefore no ban; the database is not
// consulted for it.
func (b *BanEnforcement) Check(ctx context.Context, userID UserID) error {
	if userID.IsZero() {
		return nil
	}
	ban, err := b.db.IsBanned(ctx, userID)
	if err != nil {
		return fault("check ban", err, "user_id", int64(userID))
	}
	if ban == nil {
		return nil
	}
	if ban.UserID.IsZero() {
		ban.UserID = userID
	}
	return Banned(ban)
}
