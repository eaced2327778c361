// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/internal/admission/postgres"
	"github.com/holomush/gatekeeper/internal/bridge"
	"github.com/holomush/gatekeeper/internal/liveness"
)

// Store is the persistence surface serve needs.
type Store interface {
	admission.Database
	admission.PlayerStore
	Ping(ctx context.Context) error
	Close()
}

// Oracle is a liveness oracle that may hold connections.
type Oracle interface {
	admission.LivenessOracle
	Close() error
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory connects to the database.
	// Default: postgres.Open + postgres.NewRepository
	StoreFactory func(ctx context.Context, databaseURL string) (Store, error)

	// OracleFactory builds the liveness oracle selected by cfg.Liveness.Kind.
	// Default: newOracle
	OracleFactory func(ctx context.Context, cfg *Config, live *bridge.LiveSet) (Oracle, error)
}

type pgStore struct {
	*postgres.Repository
	pool *pgxpool.Pool
}

func (s *pgStore) Close() {
	s.pool.Close()
}

func openStore(ctx context.Context, databaseURL string) (Store, error) {
	pool, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &pgStore{Repository: postgres.NewRepository(pool), pool: pool}, nil
}

type nopCloser struct {
	admission.LivenessOracle
}

func (nopCloser) Close() error { return nil }

func newOracle(ctx context.Context, cfg *Config, live *bridge.LiveSet) (Oracle, error) {
	switch cfg.Liveness.Kind {
	case LivenessRedis:
		o, err := liveness.NewRedisOracle(ctx, cfg.Secrets.RedisURL, cfg.Liveness.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return o, nil
	case LivenessHTTP:
		o, err := liveness.NewHTTPOracle(cfg.Liveness.URL, &http.Client{Timeout: cfg.Liveness.Timeout})
		if err != nil {
			return nil, err
		}
		return nopCloser{o}, nil
	default:
		return nopCloser{live}, nil
	}
}
