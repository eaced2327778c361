// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admission

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of work run by the Dispatcher.
type Task func(ctx context.Context)

// Dispatcher runs host triggers concurrently across sessions while keeping the
// triggers for one session in submission order. Each key with pending work
// gets its own worker goroutine, which exits once the key's queue drains.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[SessionID][]Task
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Tasks receive a context derived from
// parent that is cancelled by Close.
func NewDispatcher(parent context.Context) *Dispatcher {
	ctx, cancel := context.WithCancel(parent)
	return &Dispatcher{
		ctx:    ctx,
		cancel: cancel,
		queues: make(map[SessionID][]Task),
	}
}

// Submit queues a task for key. It returns ErrDispatcherClosed after Close.
func (d *Dispatcher) Submit(key SessionID, task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	pending, running := d.queues[key]
	d.queues[key] = append(pending, task)
	if !running {
		d.wg.Add(1)
		go d.work(key)
	}
	return nil
}

// Do submits a task and waits for its result or for ctx to end.
func Do[T any](ctx context.Context, d *Dispatcher, key SessionID, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	err := d.Submit(key, func(taskCtx context.Context) {
		v, err := fn(taskCtx)
		done <- result{v: v, err: err}
	})
	if err != nil {
		var zero T
		return zero, err
	}

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Pending returns the number of keys with queued or running work.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close stops accepting tasks and waits for queued ones to finish or for
// ctx to end, whichever comes first. Running tasks see their context
// cancelled only if ctx ends first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) work(key SessionID) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		pending := d.queues[key]
		if len(pending) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		task := pending[0]
		pending[0] = nil
		d.queues[key] = pending[1:]
		d.mu.Unlock()

		d.run(key, task)
	}
}

func (d *Dispatcher) run(key SessionID, task Task) {
	defer func() {
		if v := recover(); v != nil {
			slog.ErrorContext(d.ctx, "dispatcher task panicked",
				"session_id", string(key),
				"panic", v,
			)
		}
	}()
	task(d.ctx)
}
