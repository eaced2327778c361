// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// AdmissionResponse answers the connecting and joined triggers.
type AdmissionResponse struct {
	Accepted bool   `json:"accepted"`
	UserID   int64  `json:"user_id,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// JoiningRequest is the body of the joining trigger.
type JoiningRequest struct {
	NewID string `json:"new_id"`
}

// JoiningResponse answers the joining trigger.
type JoiningResponse struct {
	HandedOff bool   `json:"handed_off"`
	UserID    int64  `json:"user_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SessionResponse describes what the gatekeeper knows about one session.
type SessionResponse struct {
	SessionID admission.SessionID `json:"session_id"`
	Phase     string              `json:"phase,omitempty"`
	UserID    int64               `json:"user_id,omitempty"`
	Live      bool                `json:"live"`
}

// DisconnectsResponse carries drained disconnect instructions.
type DisconnectsResponse struct {
	Disconnects []Instruction `json:"disconnects"`
}

// ErrorResponse is returned for malformed or unserviceable requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(trigger string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		if s.cfg.Observer != nil {
			s.cfg.Observer.BridgeRequest(trigger, rec.status)
		}
	}
}

func sessionID(r *http.Request) (admission.SessionID, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	return admission.SessionID(id), id != ""
}

func (s *Server) handleConnecting(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	var ident Identity
	if err := decodeBody(w, r, &ident); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.cfg.Identities.Put(id, ident)

	record, err := admission.Do(r.Context(), s.cfg.Dispatcher, id,
		func(ctx context.Context) (*admission.PlayerRecord, error) {
			return s.cfg.Promoter.Connecting(ctx, id)
		})
	if err != nil {
		s.cfg.Identities.Forget(id)
		s.writeRejection(w, r, id, ident.Lang, http.StatusForbidden, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AdmissionResponse{Accepted: true, UserID: int64(record.UserID)})
}

func (s *Server) handleJoining(w http.ResponseWriter, r *http.Request) {
	oldID, ok := sessionID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	var req JoiningRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	newID := admission.SessionID(strings.TrimSpace(req.NewID))
	if newID == "" {
		s.writeError(w, http.StatusBadRequest, "new_id is required")
		return
	}
	lang := s.cfg.Identities.Lang(oldID)

	// Keyed by the new id so the later joined trigger for it queues behind.
	record, err := admission.Do(r.Context(), s.cfg.Dispatcher, newID,
		func(ctx context.Context) (*admission.PlayerRecord, error) {
			return s.cfg.Promoter.Joining(ctx, oldID, newID)
		})
	if err != nil {
		s.writeRejection(w, r, newID, lang, http.StatusConflict, err)
		return
	}
	s.cfg.Identities.Move(oldID, newID)

	resp := JoiningResponse{HandedOff: record != nil}
	if record != nil {
		resp.UserID = int64(record.UserID)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJoined(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	record, err := admission.Do(r.Context(), s.cfg.Dispatcher, id,
		func(ctx context.Context) (*admission.PlayerRecord, error) {
			return s.cfg.Promoter.Joined(ctx, id)
		})
	if err != nil {
		s.writeRejection(w, r, id, s.cfg.Identities.Lang(id), http.StatusForbidden, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AdmissionResponse{Accepted: true, UserID: int64(record.UserID)})
}

func (s *Server) handleDropped(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	_, err := admission.Do(r.Context(), s.cfg.Dispatcher, id,
		func(ctx context.Context) (bool, error) {
			return s.cfg.Promoter.Dropped(ctx, id), nil
		})
	if err != nil {
		s.writeUnavailable(w, r, id, err)
		return
	}
	s.cfg.Identities.Forget(id)
	s.cfg.Live.Unmark(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	live, _ := s.cfg.Live.Exists(r.Context(), id)
	resp := SessionResponse{SessionID: id, Live: live}

	state := s.cfg.Promoter.State()
	if record := state.Active.Get(id); record != nil {
		resp.Phase = record.Phase.String()
		resp.UserID = int64(record.UserID)
	} else if entry, found := state.Connecting.Get(id); found {
		resp.Phase = entry.Phase.String()
		if entry.Record != nil {
			resp.UserID = int64(entry.Record.UserID)
		}
	} else if !live {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDisconnects(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, DisconnectsResponse{Disconnects: s.cfg.Disconnects.Drain()})
}

func (s *Server) handleMarkLive(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	s.cfg.Live.Mark(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkGone(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	s.cfg.Live.Unmark(id)
	w.WriteHeader(http.StatusNoContent)
}

// writeRejection maps a pipeline error to a response. Dispatcher and context
// failures are not rejections and answer 503.
func (s *Server) writeRejection(w http.ResponseWriter, r *http.Request, id admission.SessionID, lang string, status int, err error) {
	if errors.Is(err, admission.ErrDispatcherClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.writeUnavailable(w, r, id, err)
		return
	}
	rej, _ := admission.AsRejection(err)
	s.writeJSON(w, status, AdmissionResponse{
		Accepted: false,
		Kind:     rej.Kind.String(),
		Reason:   s.cfg.Messages.Format(lang, rej),
	})
}

func (s *Server) writeUnavailable(w http.ResponseWriter, r *http.Request, id admission.SessionID, err error) {
	errutil.LogErrorContext(r.Context(), s.cfg.Logger, "bridge trigger not processed", err,
		"session_id", string(id),
		"path", r.URL.Path,
	)
	s.writeError(w, http.StatusServiceUnavailable, "gatekeeper unavailable")
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.cfg.Logger.Error("failed to write bridge response", "error", err)
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
