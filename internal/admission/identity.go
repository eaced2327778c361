// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
)

// IdentityResolver turns a connecting session's platform license into a
// durable user id.
type IdentityResolver struct {
	db         Database
	identities IdentityProvider
	lanLicense string
	now        func() time.Time
}

// ResolverOption configures an IdentityResolver.
type ResolverOption func(*IdentityResolver)

// WithLANLicense makes every session resolve to the given license instead of
// the one reported by the identity provider. Used for LAN servers without
// platform authentication.
func WithLANLicense(license string) ResolverOption {
	return func(r *IdentityResolver) {
		r.lanLicense = license
	}
}

// NewIdentityResolver creates a resolver.
func NewIdentityResolver(db Database, identities IdentityProvider, opts ...ResolverOption) (*IdentityResolver, error) {
	if db == nil {
		return nil, oops.Code("ADMISSION_INVALID_CONFIG").Errorf("database is required")
	}
	if identities == nil {
		return nil, oops.Code("ADMISSION_INVALID_CONFIG").Errorf("identity provider is required")
	}
	r := &IdentityResolver{db: db, identities: identities, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// IdentityKey strips the namespace prefix ("license:") from a license.
// A license without a namespace is returned unchanged.
func IdentityKey(license string) string {
	if _, key, ok := strings.Cut(license, ":"); ok {
		return key
	}
	return license
}

// ParseIdentifiers splits "kind:value" identifiers into a map. Entries without
// a namespace are ignored; the first value for a kind wins.
func ParseIdentifiers(raw []string) map[string]string {
	out := make(map[string]string, len(raw))
	for _, ident := range raw {
		kind, value, ok := strings.Cut(ident, ":")
		if !ok || kind == "" || value == "" {
			continue
		}
		if _, seen := out[kind]; !seen {
			out[kind] = value
		}
	}
	return out
}

// Resolve derives the identity key for a session and looks up its user id.
// The returned record's UserID is zero when no account exists yet; creation
// is deferred to Materialize so it only happens once every check passed.
func (r *IdentityResolver) Resolve(ctx context.Context, id SessionID) (*PlayerRecord, error) {
	license := r.lanLicense
	if license == "" {
		var ok bool
		license, ok = r.identities.License(id)
		if !ok || strings.TrimSpace(license) == "" {
			return nil, NoLicense()
		}
	}

	key := IdentityKey(license)
	if key == "" {
		return nil, NoLicense()
	}

	userID, err := r.db.GetUserIDFromIdentifier(ctx, key, 0)
	if err != nil {
		return nil, fault("get user id from identifier", err, "session_id", string(id))
	}

	identifiers := ParseIdentifiers(r.identities.Identifiers(id))
	identifiers["license"] = key

	return &PlayerRecord{
		UserID:      userID,
		IdentityKey: key,
		SessionID:   id,
		Username:    r.identities.Username(id),
		Tokens:      r.identities.Tokens(id),
		Identifiers: identifiers,
		Phase:       PhaseConnecting,
		ConnectedAt: r.now(),
	}, nil
}

// RecordTokens writes the session's token set against the record's user id,
// which may still be zero.
func (r *IdentityResolver) RecordTokens(ctx context.Context, record *PlayerRecord) error {
	if err := r.db.UpdateTokens(ctx, record.UserID, record.Tokens); err != nil {
		return fault("update tokens", err,
			"session_id", string(record.SessionID),
			"user_id", int64(record.UserID),
		)
	}
	return nil
}

// Materialize creates the user when the record has no id yet.
func (r *IdentityResolver) Materialize(ctx context.Context, record *PlayerRecord) error {
	if !record.UserID.IsZero() {
		return nil
	}
	userID, err := r.db.CreateUser(ctx, record.Username, record.Identifiers)
	if err != nil {
		return fault("create user", err, "session_id", string(record.SessionID))
	}
	if userID.IsZero() {
		return LoadFault(oops.Code(CodeLoadFault).
			With("session_id", string(record.SessionID)).
			Errorf("database returned zero user id for new user"))
	}
	record.UserID = userID
	return nil
}
