// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"sync"
	"time"
)

// registryEntry is one pending approval or elicitation awaiting external
// resolution (spec §3 "Approval / Elicitation Registry Entry"). Both
// registries share this shape; only the fields relevant to the owning
// registry kind are populated.
type registryEntry struct {
	id         string
	promise    *Promise[any]
	deadline   time.Time // zero means no deadline
	timeoutErr error

	// Populated for approval entries.
	toolName string
	params   any

	// Populated for elicitation entries.
	schema   any
	validate func(map[string]any) error
}

func (e *registryEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// baseRegistry implements the store/retrieve/remove/cancel/clear/size/
// shutdown machinery common to both the approvals and elicitations
// registries (spec §4.6): a keyed table of pending entries, drained by a
// single scheduler goroutine driven by a monotonic clock rather than one
// timer per entry (spec §9 "Registry threading").
type baseRegistry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	closed  bool
	stopCh  chan struct{}
	wake    chan struct{}

	// onRemove is called (outside the registry's own lock) whenever an
	// entry leaves the table, so the owning ApprovalRegistry/
	// ElicitationRegistry can keep the process-global index in sync.
	onRemove func(id string)
}

func newBaseRegistry() *baseRegistry {
	r := &baseRegistry{
		entries: make(map[string]*registryEntry),
		stopCh:  make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
	go r.scheduler()
	return r
}

func (r *baseRegistry) nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// scheduler is the single monotonic-clock timeout worker for this registry.
func (r *baseRegistry) scheduler() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.expireDue()
		case <-r.wake:
			r.expireDue()
		}
	}
}

func (r *baseRegistry) expireDue() {
	now := time.Now()
	var expired []*registryEntry
	r.mu.Lock()
	for id, e := range r.entries {
		if e.expired(now) {
			expired = append(expired, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()
	for _, e := range expired {
		e.promise.Reject(e.timeoutErr)
		if r.onRemove != nil {
			r.onRemove(e.id)
		}
	}
}

func (r *baseRegistry) store(e *registryEntry) {
	r.mu.Lock()
	r.entries[e.id] = e
	r.mu.Unlock()
	r.nudge()
}

func (r *baseRegistry) retrieve(id string) (*registryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *baseRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
	if r.onRemove != nil {
		r.onRemove(id)
	}
}

// takeAndRemove retrieves and removes id atomically, so a caller resolving
// an entry never races the scheduler expiring the same id.
func (r *baseRegistry) takeAndRemove(id string) (*registryEntry, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if ok && r.onRemove != nil {
		r.onRemove(id)
	}
	return e, ok
}

func (r *baseRegistry) cancel(id string, reason error) bool {
	e, ok := r.takeAndRemove(id)
	if !ok {
		return false
	}
	e.promise.Cancel(reason)
	return true
}

func (r *baseRegistry) clear() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()
	for id, e := range entries {
		e.promise.Cancel(fmt.Errorf("registry cleared"))
		if r.onRemove != nil {
			r.onRemove(id)
		}
	}
}

func (r *baseRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *baseRegistry) shutdown() {
	r.clear()
	r.mu.Lock()
	alreadyClosed := r.closed
	r.closed = true
	r.mu.Unlock()
	if !alreadyClosed {
		close(r.stopCh)
	}
}

// approvalDecision is the value an ApprovalRegistry promise resolves to.
type approvalDecision struct {
	Approved bool
	Reason   string
}

// globalApprovalIndex routes an external caller's complete(id, …) to the
// coordinator-owned registry that created id, since approvals and
// elicitations may be resolved from a goroutine with no reference to the
// owning coordinator (e.g. a UI callback) — spec §4.6 "process-global index".
var globalApprovalIndex = struct {
	mu    sync.Mutex
	owner map[string]*ApprovalRegistry
}{owner: make(map[string]*ApprovalRegistry)}

var globalElicitationIndex = struct {
	mu    sync.Mutex
	owner map[string]*ElicitationRegistry
}{owner: make(map[string]*ElicitationRegistry)}

// ApprovalRegistry tracks pending human-in-the-loop tool-call approval
// decisions for one coordinator. It is partitioned per coordinator instance
// so that multiple clients in one process never cross-route (spec §4.6).
type ApprovalRegistry struct {
	*baseRegistry
}

// NewApprovalRegistry returns an empty registry with its scheduler running.
func NewApprovalRegistry() *ApprovalRegistry {
	r := &ApprovalRegistry{baseRegistry: newBaseRegistry()}
	r.onRemove = func(id string) {
		globalApprovalIndex.mu.Lock()
		delete(globalApprovalIndex.owner, id)
		globalApprovalIndex.mu.Unlock()
	}
	return r
}

// Store registers a pending approval decision for a tools/call invocation
// named toolName with the given params, returning the promise the
// coordinator awaits. A zero timeout means no deadline.
func (r *ApprovalRegistry) Store(id, toolName string, params any, timeout time.Duration) *Promise[any] {
	p := NewPromise[any]()
	e := &registryEntry{
		id:         id,
		promise:    p,
		toolName:   toolName,
		params:     params,
		timeoutErr: fmt.Errorf("approval %q timed out", id),
	}
	if timeout > 0 {
		e.deadline = time.Now().Add(timeout)
	}
	r.store(e)
	globalApprovalIndex.mu.Lock()
	globalApprovalIndex.owner[id] = r
	globalApprovalIndex.mu.Unlock()
	return p
}

// Retrieve returns the tool name and params an approval id was stored with.
func (r *ApprovalRegistry) Retrieve(id string) (toolName string, params any, ok bool) {
	e, found := r.retrieve(id)
	if !found {
		return "", nil, false
	}
	return e.toolName, e.params, true
}

// Remove discards the entry for id without resolving its promise.
func (r *ApprovalRegistry) Remove(id string) { r.remove(id) }

// Approve resolves a pending approval affirmatively. It reports false if id
// was not pending (already resolved, cancelled, or expired).
func (r *ApprovalRegistry) Approve(id string) bool {
	e, ok := r.takeAndRemove(id)
	if !ok {
		return false
	}
	e.promise.Resolve(approvalDecision{Approved: true})
	return true
}

// Deny resolves a pending approval negatively with reason.
func (r *ApprovalRegistry) Deny(id, reason string) bool {
	e, ok := r.takeAndRemove(id)
	if !ok {
		return false
	}
	e.promise.Resolve(approvalDecision{Approved: false, Reason: reason})
	return true
}

// Cancel interrupts a pending approval with reason, as if denied by the
// coordinator rather than the user.
func (r *ApprovalRegistry) Cancel(id string, reason error) bool { return r.cancel(id, reason) }

// Clear cancels every pending entry.
func (r *ApprovalRegistry) Clear() { r.clear() }

// Size reports the number of pending entries.
func (r *ApprovalRegistry) Size() int { return r.size() }

// Shutdown cancels every pending entry and stops the scheduler.
func (r *ApprovalRegistry) Shutdown() { r.shutdown() }

// ApproveApproval routes an approval decision to whichever ApprovalRegistry
// owns id, for external callers that hold only the id (the process-global
// index spec §4.6 describes).
func ApproveApproval(id string) bool {
	globalApprovalIndex.mu.Lock()
	r := globalApprovalIndex.owner[id]
	globalApprovalIndex.mu.Unlock()
	if r == nil {
		return false
	}
	return r.Approve(id)
}

// DenyApproval is the global-index counterpart of ApprovalRegistry.Deny.
func DenyApproval(id, reason string) bool {
	globalApprovalIndex.mu.Lock()
	r := globalApprovalIndex.owner[id]
	globalApprovalIndex.mu.Unlock()
	if r == nil {
		return false
	}
	return r.Deny(id, reason)
}

// ElicitationRegistry tracks elicitation/create requests the coordinator has
// deferred pending a user response (spec §4.6).
type ElicitationRegistry struct {
	*baseRegistry
}

// NewElicitationRegistry returns an empty registry with its scheduler
// running.
func NewElicitationRegistry() *ElicitationRegistry {
	r := &ElicitationRegistry{baseRegistry: newBaseRegistry()}
	r.onRemove = func(id string) {
		globalElicitationIndex.mu.Lock()
		delete(globalElicitationIndex.owner, id)
		globalElicitationIndex.mu.Unlock()
	}
	return r
}

// Store registers a deferred elicitation awaiting a user response against
// schema. validate, if non-nil, runs against an "accept" response's content
// before Complete resolves the promise. A zero timeout means no deadline,
// though per spec §9 deferred elicitations should always carry one since
// their deadline is independent of the originating request's transport-level
// timeout.
func (r *ElicitationRegistry) Store(id string, schema any, timeout time.Duration, validate func(map[string]any) error) *Promise[any] {
	p := NewPromise[any]()
	e := &registryEntry{
		id:         id,
		promise:    p,
		schema:     schema,
		validate:   validate,
		timeoutErr: fmt.Errorf("Elicitation timed out"),
	}
	if timeout > 0 {
		e.deadline = time.Now().Add(timeout)
	}
	r.store(e)
	globalElicitationIndex.mu.Lock()
	globalElicitationIndex.owner[id] = r
	globalElicitationIndex.mu.Unlock()
	return p
}

// Retrieve returns the schema an elicitation id was stored with.
func (r *ElicitationRegistry) Retrieve(id string) (schema any, ok bool) {
	e, found := r.retrieve(id)
	if !found {
		return nil, false
	}
	return e.schema, true
}

// Remove discards the entry for id without resolving its promise.
func (r *ElicitationRegistry) Remove(id string) { r.remove(id) }

// Complete resolves a deferred elicitation with the user's decision. For
// action "accept", content is validated against the entry's validator (if
// any) before the promise resolves; a validation failure rejects the promise
// with InvalidFormatError rather than resolving it (spec §7 "malformed
// handler return values... approval treated as denial; elicitation treated
// as cancel"). It reports false if id was not pending.
func (r *ElicitationRegistry) Complete(id, action string, content map[string]any) bool {
	e, ok := r.takeAndRemove(id)
	if !ok {
		return false
	}
	if action == "accept" && e.validate != nil {
		if err := e.validate(content); err != nil {
			e.promise.Reject(&InvalidFormatError{Detail: err.Error()})
			return true
		}
	}
	e.promise.Resolve(&ElicitResult{Action: action, Content: content})
	return true
}

// Cancel interrupts a pending elicitation with reason.
func (r *ElicitationRegistry) Cancel(id string, reason error) bool { return r.cancel(id, reason) }

// Clear cancels every pending entry.
func (r *ElicitationRegistry) Clear() { r.clear() }

// Size reports the number of pending entries.
func (r *ElicitationRegistry) Size() int { return r.size() }

// Shutdown cancels every pending entry and stops the scheduler.
func (r *ElicitationRegistry) Shutdown() { r.shutdown() }

// CompleteElicitation routes an elicitation response to whichever
// ElicitationRegistry owns id, for external callers that hold only the id.
func CompleteElicitation(id, action string, content map[string]any) bool {
	globalElicitationIndex.mu.Lock()
	r := globalElicitationIndex.owner[id]
	globalElicitationIndex.mu.Unlock()
	if r == nil {
		return false
	}
	return r.Complete(id, action, content)
}
