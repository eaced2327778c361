// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/admission"
)

// Defaults for Config.
const (
	DefaultPruneInterval = time.Minute
	DefaultIdentityTTL   = 5 * time.Minute
	maxBodyBytes         = 64 << 10
)

// RequestObserver counts bridge requests by trigger and response status.
type RequestObserver interface {
	BridgeRequest(trigger string, status int)
}

// Config wires the bridge server.
type Config struct {
	Addr        string
	Promoter    *admission.Promoter
	Dispatcher  *admission.Dispatcher
	Messages    admission.Messages
	Identities  *IdentityCache
	Disconnects *DisconnectQueue
	Live        *LiveSet
	Observer    RequestObserver // optional
	Logger      *slog.Logger

	// PruneInterval is how often identities of unknown sessions are dropped.
	PruneInterval time.Duration
	// IdentityTTL is the minimum age before an unreferenced identity is pruned.
	IdentityTTL time.Duration
}

// Server serves the host bridge API.
type Server struct {
	cfg        Config
	handler    http.Handler
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool

	stopPrune context.CancelFunc
	pruneDone sync.WaitGroup
}

// NewServer validates cfg and builds the server.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Promoter == nil:
		return nil, oops.Code("BRIDGE_INVALID_CONFIG").Errorf("promoter is required")
	case cfg.Dispatcher == nil:
		return nil, oops.Code("BRIDGE_INVALID_CONFIG").Errorf("dispatcher is required")
	case cfg.Identities == nil:
		return nil, oops.Code("BRIDGE_INVALID_CONFIG").Errorf("identity cache is required")
	case cfg.Disconnects == nil:
		return nil, oops.Code("BRIDGE_INVALID_CONFIG").Errorf("disconnect queue is required")
	case cfg.Live == nil:
		return nil, oops.Code("BRIDGE_INVALID_CONFIG").Errorf("live set is required")
	case cfg.Logger == nil:
		return nil, oops.Code("BRIDGE_INVALID_CONFIG").Errorf("logger is required")
	}
	if cfg.Messages == nil {
		cfg.Messages = admission.PlainMessages{}
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = DefaultPruneInterval
	}
	if cfg.IdentityTTL <= 0 {
		cfg.IdentityTTL = DefaultIdentityTTL
	}

	s := &Server{cfg: cfg}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the bridge API handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions/{id}/connecting", s.instrument("connecting", s.handleConnecting))
	mux.HandleFunc("POST /v1/sessions/{id}/joining", s.instrument("joining", s.handleJoining))
	mux.HandleFunc("POST /v1/sessions/{id}/joined", s.instrument("joined", s.handleJoined))
	mux.HandleFunc("POST /v1/sessions/{id}/dropped", s.instrument("dropped", s.handleDropped))
	mux.HandleFunc("GET /v1/sessions/{id}", s.instrument("session", s.handleSession))
	mux.HandleFunc("GET /v1/disconnects", s.instrument("disconnects", s.handleDisconnects))
	mux.HandleFunc("PUT /v1/live/{id}", s.instrument("live", s.handleMarkLive))
	mux.HandleFunc("DELETE /v1/live/{id}", s.instrument("live", s.handleMarkGone))
	return mux
}

// Start begins listening on cfg.Addr and starts the identity pruner. Like
// the observability server it returns a channel carrying serve errors.
func (s *Server) Start(ctx context.Context) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("BRIDGE_ALREADY_RUNNING").Errorf("bridge server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("BRIDGE_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	pruneCtx, cancel := context.WithCancel(ctx)
	s.stopPrune = cancel
	s.pruneDone.Add(1)
	go func() {
		defer s.pruneDone.Done()
		s.runPruner(pruneCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.cfg.Logger.Error("bridge server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.cfg.Logger.Info("bridge server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down and waits for the pruner to exit.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.stopPrune != nil {
		s.stopPrune()
	}
	s.pruneDone.Wait()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.With("operation", "shutdown_bridge_server").Wrap(err)
		}
	}
	s.cfg.Logger.Info("bridge server stopped")
	return nil
}

// Addr returns the listen address, or "" when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) runPruner(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *Server) prune() int {
	state := s.cfg.Promoter.State()
	n := s.cfg.Identities.Prune(s.cfg.IdentityTTL, func(id admission.SessionID) bool {
		if _, ok := state.Connecting.Get(id); ok {
			return true
		}
		return state.Active.Get(id) != nil
	})
	if n > 0 {
		s.cfg.Logger.Debug("pruned stale identities", "count", n)
	}
	return n
}
