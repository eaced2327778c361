// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package liveness answers whether a transient host session still exists.
package liveness

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/admission"
)

// DefaultRedisPrefix is the key namespace the host writes live sessions under.
const DefaultRedisPrefix = "gatekeeper:session:"

// RedisOracle checks for a per-session key the host keeps alive in redis.
type RedisOracle struct {
	client *redis.Client
	prefix string
}

var _ admission.LivenessOracle = (*RedisOracle)(nil)

// NewRedisOracle connects to redisURL and verifies the connection.
func NewRedisOracle(ctx context.Context, redisURL, prefix string) (*RedisOracle, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("LIVENESS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("LIVENESS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return NewRedisOracleWithClient(client, prefix), nil
}

// NewRedisOracleWithClient wraps an existing client.
func NewRedisOracleWithClient(client *redis.Client, prefix string) *RedisOracle {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisOracle{client: client, prefix: prefix}
}

// Exists implements admission.LivenessOracle.
func (o *RedisOracle) Exists(ctx context.Context, id admission.SessionID) (bool, error) {
	n, err := o.client.Exists(ctx, o.key(id)).Result()
	if err != nil {
		return false, oops.Code("LIVENESS_CHECK_FAILED").
			With("session_id", string(id)).
			Wrap(err)
	}
	return n > 0, nil
}

// MarkLive records id as live for ttl. Used by hosts that report through
// the bridge instead of writing redis directly.
func (o *RedisOracle) MarkLive(ctx context.Context, id admission.SessionID, ttl time.Duration) error {
	if err := o.client.Set(ctx, o.key(id), 1, ttl).Err(); err != nil {
		return oops.Code("LIVENESS_UPDATE_FAILED").With("session_id", string(id)).Wrap(err)
	}
	return nil
}

// MarkGone removes id.
func (o *RedisOracle) MarkGone(ctx context.Context, id admission.SessionID) error {
	if err := o.client.Del(ctx, o.key(id)).Err(); err != nil {
		return oops.Code("LIVENESS_UPDATE_FAILED").With("session_id", string(id)).Wrap(err)
	}
	return nil
}

// Close closes the redis client.
func (o *RedisOracle) Close() error {
	return o.client.Close()
}

func (o *RedisOracle) key(id admission.SessionID) string {
	return o.prefix + string(id)
}
