// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

const tracerName = "github.com/holomush/gatekeeper/internal/admission"

// DefaultSaveTimeout bounds a single player save.
const DefaultSaveTimeout = 5 * time.Second

// Config wires a Promoter to its collaborators.
type Config struct {
	State        *State
	Database     Database
	Players      PlayerStore
	Identities   IdentityProvider
	Disconnector Disconnector
	Messages     Messages // optional, defaults to plain English
	Observer     Observer // optional
	Logger       *slog.Logger

	// RelaxedDuplicates enables the alternate-account retry in the duplicate guard.
	RelaxedDuplicates bool
	// LANLicense, when set, replaces every session's platform license.
	LANLicense string
	// SaveTimeout bounds each player save. Zero means DefaultSaveTimeout.
	SaveTimeout time.Duration
}

// Promoter drives sessions through Connecting -> Joining -> Active -> Removed.
type Promoter struct {
	state       *State
	resolver    *IdentityResolver
	guard       *DuplicateGuard
	bans        *BanEnforcement
	players     PlayerStore
	disconnect  Disconnector
	messages    Messages
	observer    Observer
	logger      *slog.Logger
	tracer      trace.Tracer
	saveTimeout time.Duration
}

// NewPromoter validates the configuration and builds a Promoter.
func NewPromoter(cfg Config) (*Promoter, error) {
	switch {
	case cfg.State == nil:
		return nil, oops.Code("ADMISSION_INVALID_CONFIG").Errorf("state is required")
	case cfg.Database == nil:
		return nil, oops.Code("ADMISSION_INVALID_CONFIG").Errorf("database is required")
	case cfg.Players == nil:
		return nil, oops.Code("ADMISSION_INVALID_CONFIG").Errorf("player store is required")
	case cfg.Disconnector == nil:
		return nil, oops.Code("ADMISSION_INVALID_CONFIG").Errorf("disconnector is required")
	case cfg.Logger == nil:
		return nil, oops.Code("ADMISSION_INVALID_CONFIG").Errorf("logger is required")
	}

	var opts []ResolverOption
	if cfg.LANLicense != "" {
		opts = append(opts, WithLANLicense(cfg.LANLicense))
	}
	resolver, err := NewIdentityResolver(cfg.Database, cfg.Identities, opts...)
	if err != nil {
		return nil, err
	}

	p := &Promoter{
		state:       cfg.State,
		resolver:    resolver,
		guard:       NewDuplicateGuard(cfg.Database, cfg.State, cfg.RelaxedDuplicates),
		bans:        NewBanEnforcement(cfg.Database),
		players:     cfg.Players,
		disconnect:  cfg.Disconnector,
		messages:    cfg.Messages,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		tracer:      otel.Tracer(tracerName),
		saveTimeout: cfg.SaveTimeout,
	}
	if p.messages == nil {
		p.messages = PlainMessages{}
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if p.saveTimeout <= 0 {
		p.saveTimeout = DefaultSaveTimeout
	}
	return p, nil
}

// State returns the promoter's shared state.
func (p *Promoter) State() *State {
	return p.state
}

// Snapshot returns current lockdown status and registry sizes.
func (p *Promoter) Snapshot() Snapshot {
	return p.state.Snapshot()
}

// Connecting handles the host's "connecting" trigger. On success the resolved
// record is parked in the connection registry and returned. On failure the
// error is a *Rejection.
func (p *Promoter) Connecting(ctx context.Context, id SessionID) (*PlayerRecord, error) {
	attempt := NewAttemptID()
	ctx, span := p.tracer.Start(ctx, "admission.connecting", trace.WithAttributes(
		attribute.String("session_id", string(id)),
		attribute.String("attempt_id", attempt.String()),
	))
	defer span.End()

	if rej := p.state.Lockdown.Check(); rej != nil {
		return nil, p.rejected(ctx, span, id, attempt, rej)
	}

	p.state.Connecting.Admit(id)
	p.observer.ConnectingSessions(p.state.Connecting.Len())

	record, err := p.load(ctx, id)
	if err != nil {
		p.state.Connecting.Discard(id)
		p.observer.ConnectingSessions(p.state.Connecting.Len())
		return nil, p.rejected(ctx, span, id, attempt, err)
	}

	p.state.Connecting.Commit(record)
	p.observer.AdmissionOutcome("accepted")
	span.SetAttributes(attribute.Int64("user_id", int64(record.UserID)))
	p.logger.InfoContext(ctx, "loaded player data",
		"session_id", string(id),
		"attempt_id", attempt.String(),
		"user_id", int64(record.UserID),
	)
	return record.Clone(), nil
}

// Joining handles the host's "joining" trigger, which moves a connecting
// session from its transient id to the id assigned on join. It returns nil
// without error when nothing was pending under oldID. Under lockdown the
// session is disconnected instead.
func (p *Promoter) Joining(ctx context.Context, oldID, newID SessionID) (*PlayerRecord, error) {
	if rej := p.state.Lockdown.Check(); rej != nil {
		p.state.Connecting.Discard(oldID)
		p.disconnect.Disconnect(newID, rej.Reason)
		p.observer.AdmissionOutcome(rej.Kind.String())
		p.logger.InfoContext(ctx, "joining refused during lockdown",
			"session_id", string(newID),
			"previous_session_id", string(oldID),
		)
		return nil, rej
	}

	record := p.state.Connecting.Handoff(oldID, newID)
	if record == nil {
		p.logger.DebugContext(ctx, "joining without pending session",
			"session_id", string(newID),
			"previous_session_id", string(oldID),
		)
		return nil, nil
	}

	p.logger.InfoContext(ctx, "assigned session id",
		"session_id", string(newID),
		"previous_session_id", string(oldID),
		"user_id", int64(record.UserID),
	)
	return record, nil
}

// Joined handles the "joined" confirmation and activates the session. When
// no resolved record is pending, identity is resolved on the spot. Any
// rejection disconnects the session with its formatted reason.
func (p *Promoter) Joined(ctx context.Context, id SessionID) (*PlayerRecord, error) {
	attempt := NewAttemptID()
	ctx, span := p.tracer.Start(ctx, "admission.joined", trace.WithAttributes(
		attribute.String("session_id", string(id)),
		attribute.String("attempt_id", attempt.String()),
	))
	defer span.End()

	if rej := p.state.Lockdown.Check(); rej != nil {
		p.state.Connecting.Discard(id)
		p.disconnect.Disconnect(id, rej.Reason)
		return nil, p.rejected(ctx, span, id, attempt, rej)
	}

	record := p.state.Connecting.Take(id)
	resolved := record == nil
	if resolved {
		var err error
		record, err = p.load(ctx, id)
		p.state.Connecting.Discard(id)
		if err != nil {
			rej := p.rejected(ctx, span, id, attempt, err)
			p.disconnect.Disconnect(id, p.messages.Format("", rej))
			return nil, rej
		}
	}

	// Lockdown may have engaged while the record was loading.
	if rej := p.state.Lockdown.Check(); rej != nil {
		p.disconnect.Disconnect(id, rej.Reason)
		p.observer.ConnectingSessions(p.state.Connecting.Len())
		return nil, p.rejected(ctx, span, id, attempt, rej)
	}
	if resolved {
		p.observer.AdmissionOutcome("accepted")
	}

	active := p.state.Active.Activate(record)

	// Shutdown engages lockdown before listing active players. A lockdown
	// seen here may have missed this record, so it is withdrawn.
	if rej := p.state.Lockdown.Check(); rej != nil {
		if _, err := p.state.Active.Remove(id); err == nil {
			p.disconnect.Disconnect(id, rej.Reason)
		}
		p.observer.ConnectingSessions(p.state.Connecting.Len())
		p.observer.ActivePlayers(p.state.Active.Len())
		return nil, p.rejected(ctx, span, id, attempt, rej)
	}

	p.observer.ConnectingSessions(p.state.Connecting.Len())
	p.observer.ActivePlayers(p.state.Active.Len())
	p.logger.InfoContext(ctx, "player joined",
		"session_id", string(id),
		"user_id", int64(active.UserID),
		"username", active.Username,
	)
	return active, nil
}

// Dropped handles the "dropped" trigger. The record is saved with logout
// bookkeeping and then removed from whichever registry holds it. Unknown ids
// are ignored. It reports whether anything was removed.
func (p *Promoter) Dropped(ctx context.Context, id SessionID) bool {
	if record := p.state.Active.Get(id); record != nil {
		p.save(ctx, record, true)
		if _, err := p.state.Active.Remove(id); err != nil {
			p.logger.DebugContext(ctx, "player already removed", "session_id", string(id))
		}
		p.observer.ActivePlayers(p.state.Active.Len())
		p.logger.InfoContext(ctx, "dropped player",
			"session_id", string(id),
			"user_id", int64(record.UserID),
		)
		return true
	}

	entry := p.state.Connecting.Discard(id)
	if entry == nil {
		return false
	}
	if entry.Record != nil && !entry.Record.UserID.IsZero() {
		p.save(ctx, entry.Record, true)
	}
	p.observer.ConnectingSessions(p.state.Connecting.Len())
	p.logger.InfoContext(ctx, "dropped connecting session",
		"session_id", string(id),
		"phase", entry.Phase.String(),
	)
	return true
}

// SaveSummary reports the result of a bulk save.
type SaveSummary struct {
	Saved  int `json:"saved"`
	Failed int `json:"failed"`
}

// SaveAll saves every active record without disconnecting anyone.
func (p *Promoter) SaveAll(ctx context.Context) SaveSummary {
	return p.saveAll(ctx, "", false)
}

// Shutdown engages lockdown and starts a background save of every active
// record, disconnecting each one with the lockdown reason once its save
// finished. Only the first reason is kept; later calls still re-run the save.
// The returned channel yields the summary and is then closed.
func (p *Promoter) Shutdown(ctx context.Context, reason string) <-chan SaveSummary {
	if p.state.Lockdown.Engage(reason) {
		p.observer.LockdownEngaged()
		p.logger.InfoContext(ctx, "lockdown engaged", "reason", reason)
	}
	reason, _ = p.state.Lockdown.Reason()

	done := make(chan SaveSummary, 1)
	go func() {
		defer close(done)
		done <- p.saveAll(context.WithoutCancel(ctx), reason, true)
	}()
	return done
}

func (p *Promoter) saveAll(ctx context.Context, reason string, disconnect bool) SaveSummary {
	records := p.state.Active.List()

	var (
		mu      sync.Mutex
		summary SaveSummary
		wg      sync.WaitGroup
	)
	for _, record := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := p.save(ctx, record, false)
			if disconnect {
				p.disconnect.Disconnect(record.SessionID, reason)
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				summary.Saved++
			} else {
				summary.Failed++
			}
		}()
	}
	wg.Wait()

	p.logger.InfoContext(ctx, "saved players",
		"saved", summary.Saved,
		"failed", summary.Failed,
		"disconnect", disconnect,
	)
	return summary
}

func (p *Promoter) save(ctx context.Context, record *PlayerRecord, logout bool) bool {
	ctx, cancel := context.WithTimeout(ctx, p.saveTimeout)
	defer cancel()

	if err := p.players.SavePlayer(ctx, record, logout); err != nil {
		p.observer.PlayerSaved(false)
		errutil.LogErrorContext(ctx, p.logger, "failed to save player", err,
			"session_id", string(record.SessionID),
			"user_id", int64(record.UserID),
		)
		return false
	}
	p.observer.PlayerSaved(true)
	return true
}

// load runs the fixed check sequence: lockdown, identity, duplicate, tokens,
// ban, then lazy account creation. Faults clean up any partial record that
// already carries a user id.
func (p *Promoter) load(ctx context.Context, id SessionID) (record *PlayerRecord, err error) {
	var partial *PlayerRecord
	defer func() {
		if v := recover(); v != nil {
			record = nil
			err = LoadFault(oops.Code(CodeLoadFault).
				With("session_id", string(id)).
				Errorf("panic during admission: %v", v))
		}
		if rej, ok := AsRejection(err); ok && rej.Kind == KindLoadFault {
			p.cleanup(ctx, id, partial)
		}
	}()

	if rej := p.state.Lockdown.Check(); rej != nil {
		return nil, rej
	}

	partial, err = p.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = p.guard.Check(ctx, partial); err != nil {
		return nil, err
	}
	if err = p.resolver.RecordTokens(ctx, partial); err != nil {
		return nil, err
	}
	if err = p.bans.Check(ctx, partial.UserID); err != nil {
		return nil, err
	}
	if err = p.resolver.Materialize(ctx, partial); err != nil {
		return nil, err
	}
	return partial, nil
}

func (p *Promoter) cleanup(ctx context.Context, id SessionID, partial *PlayerRecord) {
	if partial == nil || partial.UserID.IsZero() {
		return
	}
	if _, err := p.state.Active.Remove(id); err == nil {
		p.logger.WarnContext(ctx, "removed partially loaded player",
			"session_id", string(id),
			"user_id", int64(partial.UserID),
		)
	}
}

// rejected records, logs and returns the classified rejection for err.
func (p *Promoter) rejected(ctx context.Context, span trace.Span, id SessionID, attempt ulid.ULID, err error) *Rejection {
	rej, _ := AsRejection(err)
	p.observer.AdmissionOutcome(rej.Kind.String())
	span.SetAttributes(attribute.String("rejection", rej.Kind.String()))

	if rej.Expected() {
		p.logger.InfoContext(ctx, "admission rejected",
			"session_id", string(id),
			"attempt_id", attempt.String(),
			"kind", rej.Kind.String(),
			"user_id", int64(rej.UserID),
		)
		return rej
	}

	span.SetStatus(codes.Error, "load fault")
	span.RecordError(rej)
	errutil.LogErrorContext(ctx, p.logger, "error loading player", rej.Unwrap(),
		"session_id", string(id),
		"attempt_id", attempt.String(),
	)
	return rej
}

// PlainMessages formats rejections in English without a locale catalog.
type PlainMessages struct{}

// Format implements Messages.
func (PlainMessages) Format(_ string, r *Rejection) string {
	switch r.Kind {
	case KindNoLicense:
		return "Unable to find your license."
	case KindDuplicateSession:
		return fmt.Sprintf("User ID %s is already active.", r.UserID)
	case KindBanned:
		if r.Ban != nil && r.Ban.Reason != "" {
			return "You are banned: " + r.Ban.Reason
		}
		return "You are banned."
	case KindLockdownActive:
		return r.Reason
	default:
		return "Failed to load player."
	}
}
