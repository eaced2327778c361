// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned by collaborators when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDispatcherClosed is returned when a trigger arrives after the dispatcher stopped.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Kind classifies why an admission attempt was rejected.
type Kind int

// Rejection kinds.
const (
	KindNoLicense Kind = iota + 1
	KindDuplicateSession
	KindBanned
	KindLockdownActive
	KindLoadFault
)

// Error codes, one per Kind.
const (
	CodeNoLicense        = "ADMISSION_NO_LICENSE"
	CodeDuplicateSession = "ADMISSION_DUPLICATE_SESSION"
	CodeBanned           = "ADMISSION_BANNED"
	CodeLockdown         = "ADMISSION_LOCKDOWN"
	CodeLoadFault        = "ADMISSION_LOAD_FAULT"
)

// String returns the snake_case kind name used on the wire and in metrics.
func (k Kind) String() string {
	switch k {
	case KindNoLicense:
		return "no_license"
	case KindDuplicateSession:
		return "duplicate_session"
	case KindBanned:
		return "banned"
	case KindLockdownActive:
		return "lockdown"
	case KindLoadFault:
		return "load_fault"
	default:
		return "unknown"
	}
}

// Code returns the error code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindNoLicense:
		return CodeNoLicense
	case KindDuplicateSession:
		return CodeDuplicateSession
	case KindBanned:
		return CodeBanned
	case KindLockdownActive:
		return CodeLockdown
	case KindLoadFault:
		return CodeLoadFault
	default:
		return "ADMISSION_UNKNOWN"
	}
}

// Rejection is the structured outcome of a refused admission attempt.
// Only the fields relevant to Kind are set. Formatting for players happens
// at the boundary (see the locale package); Error() is for logs only.
type Rejection struct {
	Kind   Kind
	UserID UserID     // KindDuplicateSession
	Ban    *BanRecord // KindBanned
	Reason string     // KindLockdownActive
	cause  error      // KindLoadFault
}

// NoLicense builds a KindNoLicense rejection.
func NoLicense() *Rejection {
	return &Rejection{Kind: KindNoLicense}
}

// DuplicateSession builds a rejection naming the user id that is already bound.
func DuplicateSession(userID UserID) *Rejection {
	return &Rejection{Kind: KindDuplicateSession, UserID: userID}
}

// Banned builds a rejection from an active ban record.
func Banned(ban *BanRecord) *Rejection {
	return &Rejection{Kind: KindBanned, Ban: ban, UserID: ban.UserID}
}

// LockdownActive builds a rejection carrying the lockdown reason.
func LockdownActive(reason string) *Rejection {
	return &Rejection{Kind: KindLockdownActive, Reason: reason}
}

// LoadFault wraps an unexpected failure. The cause is kept for logging and
// never shown to the rejected session.
func LoadFault(cause error) *Rejection {
	return &Rejection{Kind: KindLoadFault, cause: cause}
}

// Error implements error.
func (r *Rejection) Error() string {
	switch r.Kind {
	case KindDuplicateSession:
		return fmt.Sprintf("admission rejected: %s (user %s)", r.Kind, r.UserID)
	case KindBanned:
		return fmt.Sprintf("admission rejected: %s (user %s)", r.Kind, r.UserID)
	case KindLockdownActive:
		return fmt.Sprintf("admission rejected: %s: %s", r.Kind, r.Reason)
	case KindLoadFault:
		if r.cause != nil {
			return fmt.Sprintf("admission rejected: %s: %v", r.Kind, r.cause)
		}
	}
	return "admission rejected: " + r.Kind.String()
}

// Unwrap exposes the cause of a load fault.
func (r *Rejection) Unwrap() error {
	return r.cause
}

// Code returns the error code for the rejection kind.
func (r *Rejection) Code() string {
	return r.Kind.Code()
}

// Expected reports whether the rejection is a policy outcome rather than a fault.
func (r *Rejection) Expected() bool {
	return r.Kind != KindLoadFault
}

// AsRejection extracts a *Rejection from err. Any other non-nil error is
// treated as a load fault so callers always get a classified outcome.
func AsRejection(err error) (*Rejection, bool) {
	if err == nil {
		return nil, false
	}
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return LoadFault(err), true
}

// fault wraps a collaborator error with an oops code and operation context.
func fault(operation string, err error, kv ...any) *Rejection {
	b := oops.Code(CodeLoadFault).With("operation", operation)
	if len(kv) > 0 {
		b = b.With(kv...)
	}
	return LoadFault(b.Wrap(err))
}
