// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"sync"
)

// Promise is a single-assignment future: exactly one of Resolve, Reject, or
// Cancel settles it, the first call wins, and every Await plus any callback
// registered via OnSettle observes the same outcome. It backs the deferred
// approval and elicitation decisions the handler registries hand back to the
// coordinator (spec §3 "Approval / Elicitation Registry Entry").
type Promise[T any] struct {
	done chan struct{}
	// settleOnce guards settle against concurrent Resolve/Reject/Cancel
	// calls; only the first taker proceeds.
	settleOnce chan struct{}

	// value/err are only safe to read after done is closed.
	value T
	err   error

	mu        sync.Mutex
	callbacks []func(T, error)
}

// NewPromise returns an unsettled promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{
		done:       make(chan struct{}),
		settleOnce: make(chan struct{}, 1),
	}
}

func (p *Promise[T]) settle(v T, err error) bool {
	select {
	case p.settleOnce <- struct{}{}:
	default:
		return false
	}
	p.value, p.err = v, err
	close(p.done)

	p.mu.Lock()
	cbs := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(v, err)
	}
	return true
}

// OnSettle registers cb to run once the promise settles, fanning out to
// every registered callback in registration order. If the promise has
// already settled, cb runs immediately (synchronously, on the calling
// goroutine).
func (p *Promise[T]) OnSettle(cb func(T, error)) {
	p.mu.Lock()
	if p.Settled() {
		p.mu.Unlock()
		cb(p.value, p.err)
		return
	}
	p.callbacks = append(p.callbacks, cb)
	p.mu.Unlock()
}

// Resolve settles the promise successfully with v. Calls after the first
// settlement are ignored.
func (p *Promise[T]) Resolve(v T) { p.settle(v, nil) }

// Reject settles the promise with err.
func (p *Promise[T]) Reject(err error) {
	var zero T
	p.settle(zero, err)
}

// Cancel settles the promise with reason, the error observed by Await and
// any OnSettle callback; it is indistinguishable from Reject to callers, the
// distinct name documents caller intent (spec's "cancel" outcome for a
// registry entry).
func (p *Promise[T]) Cancel(reason error) {
	var zero T
	p.settle(zero, reason)
}

// Await blocks until the promise settles or ctx is done, whichever is first.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the promise has already settled.
func (p *Promise[T]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
