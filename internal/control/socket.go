// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control provides an HTTP control socket for process management.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/internal/xdg"
)

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is returned by the /status endpoint.
type StatusResponse struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Instance      string `json:"instance,omitempty"`
	admission.Snapshot
}

// ShutdownRequest is the optional body of /shutdown.
type ShutdownRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ShutdownResponse is returned by the /shutdown endpoint.
type ShutdownResponse struct {
	Message string `json:"message"`
}

// Admin is the admission surface exposed on the socket.
type Admin interface {
	Snapshot() admission.Snapshot
	SaveAll(ctx context.Context) admission.SaveSummary
}

// ShutdownFunc is called when shutdown is requested. reason may be empty.
type ShutdownFunc func(reason string)

// Server runs HTTP over a Unix socket for process management.
type Server struct {
	instance     string
	startTime    time.Time
	admin        Admin
	listener     net.Listener
	httpServer   *http.Server
	socketPath   string
	shutdownFunc ShutdownFunc
	running      atomic.Bool
}

// NewServer creates a control socket server for the named instance.
func NewServer(instance string, admin Admin, shutdownFunc ShutdownFunc) *Server {
	s := &Server{
		instance:     instance,
		startTime:    time.Now(),
		admin:        admin,
		shutdownFunc: shutdownFunc,
	}
	s.running.Store(true)
	return s
}

// SocketPath returns the path to the Unix socket of an instance.
func SocketPath(instance string) (string, error) {
	runtimeDir, err := xdg.RuntimeDir()
	if err != nil {
		return "", oops.Code("CONTROL_SOCKET_PATH").Wrap(err)
	}
	return filepath.Join(runtimeDir, fmt.Sprintf("gatekeeper-%s.sock", instance)), nil
}

// Start begins listening on the Unix socket.
func (s *Server) Start() error {
	socketPath, err := SocketPath(s.instance)
	if err != nil {
		return err
	}
	s.socketPath = socketPath

	if err := xdg.EnsureDir(filepath.Dir(socketPath)); err != nil {
		return err
	}

	// A stale socket from a crashed process blocks Listen.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return oops.Code("CONTROL_SOCKET_FAILED").With("path", socketPath).Wrap(err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return oops.Code("CONTROL_SOCKET_FAILED").With("path", socketPath).Wrap(err)
	}
	s.listener = listener

	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return oops.Code("CONTROL_SOCKET_FAILED").With("path", socketPath).Wrap(err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control socket server error",
				"instance", s.instance,
				"error", err,
			)
		}
	}()

	return nil
}

// Handler returns the control API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.HandleFunc("POST /saveplayers", s.handleSavePlayers)
	return mux
}

// Stop gracefully shuts down the control socket server.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.With("operation", "shutdown_control_socket").Wrap(err)
		}
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("failed to close control socket listener",
				"instance", s.instance,
				"error", err,
			)
		}
	}

	if s.socketPath != "" {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove control socket file",
				"instance", s.instance,
				"path", s.socketPath,
				"error", err,
			)
		}
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	s.respond(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Running:       s.running.Load(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Instance:      s.instance,
	}
	if s.admin != nil {
		resp.Snapshot = s.admin.Snapshot()
	}
	s.respond(w, http.StatusOK, resp)
}

// handleShutdown acknowledges first and then runs the shutdown callback,
// which stops this server.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req ShutdownRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respond(w, http.StatusBadRequest, ShutdownResponse{Message: "invalid request body"})
		return
	}

	s.respond(w, http.StatusOK, ShutdownResponse{Message: "shutdown initiated"})

	if s.shutdownFunc != nil {
		go s.shutdownFunc(req.Reason)
	}
}

func (s *Server) handleSavePlayers(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		s.respond(w, http.StatusServiceUnavailable, ShutdownResponse{Message: "admission not available"})
		return
	}
	summary := s.admin.SaveAll(r.Context())
	slog.InfoContext(r.Context(), "saved players on request",
		"saved", summary.Saved,
		"failed", summary.Failed,
	)
	s.respond(w, http.StatusOK, summary)
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		slog.Error("failed to write control response",
			"instance", s.instance,
			"error", err,
		)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return oops.Code("CONTROL_ENCODE_FAILED").Wrap(err)
	}
	return nil
}
