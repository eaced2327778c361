// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/gatekeeper/internal/admission"
)

// Instruction tells the host to drop a session.
type Instruction struct {
	ID        string              `json:"id"`
	SessionID admission.SessionID `json:"session_id"`
	Reason    string              `json:"reason"`
	IssuedAt  time.Time           `json:"issued_at"`
}

// DisconnectQueue buffers disconnect instructions until the host polls them.
type DisconnectQueue struct {
	mu      sync.Mutex
	pending []Instruction
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

var _ admission.Disconnector = (*DisconnectQueue)(nil)

// NewDisconnectQueue creates an empty queue.
func NewDisconnectQueue() *DisconnectQueue {
	return &DisconnectQueue{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Disconnect implements admission.Disconnector. A later instruction for the
// same session replaces the pending one.
func (q *DisconnectQueue) Disconnect(id admission.SessionID, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	ins := Instruction{
		ID:        ulid.MustNew(ulid.Timestamp(now), q.entropy).String(),
		SessionID: id,
		Reason:    reason,
		IssuedAt:  now.UTC(),
	}
	for i := range q.pending {
		if q.pending[i].SessionID == id {
			q.pending[i] = ins
			return
		}
	}
	q.pending = append(q.pending, ins)
}

// Drain returns and clears the pending instructions in issue order.
func (q *DisconnectQueue) Drain() []Instruction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	if out == nil {
		out = []Instruction{}
	}
	return out
}

// Len returns the number of pending instructions.
func (q *DisconnectQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
