// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/gatekeeper/internal/admission"
)

// Repository implements admission.Database and admission.PlayerStore.
type Repository struct {
	pool       poolIface
	maxRetries uint64
	retryBase  time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithRetry sets how often transient failures are retried.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(r *Repository) {
		r.maxRetries = maxRetries
		r.retryBase = base
	}
}

// NewRepository creates a repository on pool.
func NewRepository(pool poolIface, opts ...Option) *Repository {
	r := &Repository{
		pool:       pool,
		maxRetries: DefaultMaxRetries,
		retryBase:  DefaultRetryBase,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	_ admission.Database    = (*Repository)(nil)
	_ admission.PlayerStore = (*Repository)(nil)
)

// Ping checks connectivity for readiness probes.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

func (r *Repository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// CreateUser inserts a user and returns its id.
func (r *Repository) CreateUser(ctx context.Context, username string, identifiers map[string]string) (admission.UserID, error) {
	var id int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			INSERT INTO users (username, license2, steam, fivem, discord)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING user_id
		`,
			username,
			identifiers["license"],
			nullable(identifiers["steam"]),
			nullable(identifiers["fivem"]),
			nullable(identifiers["discord"]),
		).Scan(&id)
	})
	if err != nil {
		return 0, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", username).
			Wrap(err)
	}
	return admission.UserID(id), nil
}

// GetUserIDFromIdentifier returns the variant-th user registered on the
// identity key, ordered by id, or zero when there is none.
func (r *Repository) GetUserIDFromIdentifier(ctx context.Context, identityKey string, variant int) (admission.UserID, error) {
	if variant < 0 {
		return 0, oops.Code("INVALID_VARIANT").Errorf("variant must be non-negative, got %d", variant)
	}

	var id int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			SELECT user_id FROM users
			WHERE license2 = $1
			ORDER BY user_id
			OFFSET $2 LIMIT 1
		`, identityKey, variant).Scan(&id)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, oops.Code("USER_LOOKUP_FAILED").
			With("operation", "get user id from identifier").
			With("variant", variant).
			Wrap(err)
	}
	return admission.UserID(id), nil
}

// UpdateTokens upserts the token set with a fresh last_seen. Tokens are kept
// for a zero user id too, as an audit trail of unresolved attempts.
func (r *Repository) UpdateTokens(ctx context.Context, userID admission.UserID, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	err := r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO user_tokens (user_id, token, last_seen)
			SELECT $1, t, now() FROM unnest($2::text[]) AS t
			ON CONFLICT (user_id, token) DO UPDATE SET last_seen = EXCLUDED.last_seen
		`, int64(userID), tokens)
		return err
	})
	if err != nil {
		return oops.Code("TOKENS_UPDATE_FAILED").
			With("operation", "upsert tokens").
			With("user_id", int64(userID)).
			With("count", len(tokens)).
			Wrap(err)
	}
	return nil
}

// IsBanned returns the user's active ban, or nil. A ban is active while
// unban_at is NULL or in the future.
func (r *Repository) IsBanned(ctx context.Context, userID admission.UserID) (*admission.BanRecord, error) {
	var (
		id       int64
		reason   string
		bannedAt time.Time
		unbanAt  *time.Time
	)
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			SELECT user_id, reason, banned_at, unban_at FROM bans
			WHERE user_id = $1 AND (unban_at IS NULL OR unban_at > now())
		`, int64(userID)).Scan(&id, &reason, &bannedAt, &unbanAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("BAN_LOOKUP_FAILED").
			With("operation", "get active ban").
			With("user_id", int64(userID)).
			Wrap(err)
	}
	return &admission.BanRecord{
		UserID:   admission.UserID(id),
		Reason:   reason,
		BannedAt: bannedAt,
		UnbanAt:  unbanAt,
	}, nil
}

// SavePlayer stamps last_played, and last_logout when logout is set.
func (r *Repository) SavePlayer(ctx context.Context, record *admission.PlayerRecord, logout bool) error {
	if record.UserID.IsZero() {
		return nil
	}
	var rows int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE users SET
				username = COALESCE(NULLIF($2, ''), username),
				last_played = now(),
				last_logout = CASE WHEN $3 THEN now() ELSE last_logout END
			WHERE user_id = $1
		`, int64(record.UserID), record.Username, logout)
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return oops.Code("PLAYER_SAVE_FAILED").
			With("operation", "update user").
			With("user_id", int64(record.UserID)).
			With("logout", logout).
			Wrap(err)
	}
	if rows == 0 {
		return oops.Code("PLAYER_SAVE_FAILED").
			With("user_id", int64(record.UserID)).
			Wrapf(admission.ErrNotFound, "user %s", record.UserID)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
