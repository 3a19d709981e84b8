// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	internaljson "github.com/mcpcoord/go-mcp-client/internal/json"
	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

// defaultProtocolVersion is offered in the initialize handshake when the
// caller does not configure CoordinatorOptions.SupportedProtocolVersions.
const defaultProtocolVersion = "2025-06-18"

// defaultRequestTimeout is the RequestTimeout used when
// CoordinatorOptions.RequestTimeout is unset. It bounds every outbound
// request, in addition to any deadline already on the caller's ctx (spec §4.5
// "Timeouts").
const defaultRequestTimeout = 30 * time.Second

// SamplingHandler answers a server-initiated sampling/createMessage request.
// Returning an error causes the coordinator to reply with a protocol-level
// error response rather than a rejection result.
type SamplingHandler func(ctx context.Context, params *CreateMessageParams) (*CreateMessageResult, error)

// ElicitationHandler answers a server-initiated elicitation/create request.
// It may resolve synchronously (return a non-nil result) or defer the
// decision by returning (nil, nil): the coordinator then tracks the pending
// decision in its ElicitationRegistry until external code resolves it via
// ElicitationRegistry.Complete or the package-level CompleteElicitation.
type ElicitationHandler func(ctx context.Context, params *ElicitParams) (*ElicitResult, error)

// ApprovalDecision is the outcome of an ApprovalHandler consultation. Reason
// is surfaced to the model as the tool's error content when Approved is
// false.
type ApprovalDecision struct {
	Approved bool
	Reason   string
}

// ApprovalHandler is consulted before every tools/call. It may resolve
// synchronously (return a non-nil decision) or defer the decision by
// returning (nil, nil): the coordinator then tracks the pending decision in
// its ApprovalRegistry, subject to CoordinatorOptions.ApprovalTimeout, until
// external code resolves it via ApprovalRegistry.Approve/Deny or the
// package-level ApproveApproval/DenyApproval (spec §4.5 "Human-in-the-loop",
// §4.6).
type ApprovalHandler func(ctx context.Context, toolName string, params any) (*ApprovalDecision, error)

// NotificationHandler receives every server-to-client notification other
// than notifications/cancelled, which the coordinator handles internally
// (spec §4.5 "emit notifications to user callbacks"). It is called
// synchronously from the read loop, once per notification in transport
// order, so a slow or blocking handler delays delivery of subsequent
// notifications; a panic inside it is logged and swallowed (spec §5).
type NotificationHandler func(ctx context.Context, n *Result)

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Transport  Transport
	ClientInfo *Implementation

	// Roots, if non-empty, advertises roots support and is returned verbatim
	// in response to a server-initiated roots/list request.
	Roots []*Root

	EnableSampling    bool
	EnableElicitation bool
	Sampling          SamplingHandler
	Elicitation       ElicitationHandler
	Approval          ApprovalHandler

	// Notification, if non-nil, receives every inbound notification except
	// notifications/cancelled (progress, logging messages, resource updates,
	// and the */list_changed family — spec §6).
	Notification NotificationHandler

	// ApprovalTimeout bounds how long a deferred ApprovalHandler decision
	// (ApprovalHandler returning nil, nil) may take. Zero means no deadline.
	ApprovalTimeout time.Duration

	// ElicitationTimeout bounds how long a deferred elicitation/create
	// decision (ElicitationHandler returning nil, nil) may take before it
	// auto-rejects with "Elicitation timed out". Zero means no deadline.
	ElicitationTimeout time.Duration

	// RequestTimeout bounds every outbound request issued by this
	// coordinator. Defaults to defaultRequestTimeout.
	RequestTimeout time.Duration

	// SupportedProtocolVersions lists the versions this client accepts, in
	// preference order; the first is offered in the initialize request.
	// Defaults to []string{defaultProtocolVersion}.
	SupportedProtocolVersions []string

	// InitialLoggingLevel, if non-empty, is set via logging/setLevel
	// immediately after the initialize handshake completes.
	InitialLoggingLevel LoggingLevel
}

// protocolVersionSetter is implemented by transports (the streamable HTTP
// connection) that must echo the negotiated protocol version on subsequent
// requests via the mcp-protocol-version header.
type protocolVersionSetter interface {
	SetProtocolVersion(version string)
}

// pendingEntry is a client-sent request awaiting its response.
type pendingEntry struct {
	result chan *Result
	err    chan error
}

// Coordinator is the single actor that owns an MCP session: the handshake,
// request/response correlation, server-initiated request dispatch, and
// pagination (spec §4.5). It is safe for concurrent use by multiple
// goroutines issuing requests.
type Coordinator struct {
	opts CoordinatorOptions

	mu              sync.Mutex
	conn            Connection
	started         bool
	nextID          int64
	pending         map[string]*pendingEntry
	protocolVersion string
	serverCaps      *ServerCapabilities
	serverInfo      *Implementation

	approvals    *ApprovalRegistry
	elicitations *ElicitationRegistry

	// serverOps tracks in-flight server-initiated requests by their JSON-RPC
	// id, so an inbound notifications/cancelled naming that id can interrupt
	// the handler via its CancellableOperation (spec §4.5).
	serverOps map[string]*CancellableOperation

	readDone chan struct{}
	stopOnce sync.Once
}

// NewCoordinator returns a Coordinator in the stopped state; call Start to
// open the transport and perform the handshake.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if len(opts.SupportedProtocolVersions) == 0 {
		opts.SupportedProtocolVersions = []string{defaultProtocolVersion}
	}
	return &Coordinator{
		opts:         opts,
		pending:      make(map[string]*pendingEntry),
		approvals:    NewApprovalRegistry(),
		elicitations: NewElicitationRegistry(),
		serverOps:    make(map[string]*CancellableOperation),
	}
}

// ServerInfo returns the server's self-description from the initialize
// response, or nil if Start has not completed.
func (c *Coordinator) ServerInfo() *Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// ServerCapabilities returns the server's advertised capabilities, or nil if
// Start has not completed.
func (c *Coordinator) ServerCapabilities() *ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCaps
}

// Start opens the transport, performs the initialize handshake, and begins
// reading inbound envelopes. It fails fast if the server names a protocol
// version this client does not support.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("mcp: coordinator already started")
	}
	c.mu.Unlock()

	conn, err := c.opts.Transport.Connect(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.readDone = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn, c.readDone)

	caps := &ClientCapabilities{}
	if len(c.opts.Roots) > 0 {
		caps.RootsV2 = &RootCapabilities{}
	}
	if c.opts.EnableSampling {
		caps.Sampling = &SamplingCapabilities{}
	}
	if c.opts.EnableElicitation {
		caps.Elicitation = &ElicitationCapabilities{}
	}

	initParams := &InitializeParams{
		Capabilities:    caps,
		ClientInfo:      c.opts.ClientInfo,
		ProtocolVersion: c.opts.SupportedProtocolVersions[0],
	}
	res, err := c.Request(ctx, methodInitialize, initParams)
	if err != nil {
		conn.Close()
		return err
	}
	var initResult InitializeResult
	if err := res.DecodeResult(&initResult); err != nil {
		conn.Close()
		return &InvalidFormatError{Detail: "initialize result: " + err.Error()}
	}
	if !containsString(c.opts.SupportedProtocolVersions, initResult.ProtocolVersion) {
		conn.Close()
		return &UnsupportedProtocolVersionError{Version: initResult.ProtocolVersion}
	}

	c.mu.Lock()
	c.protocolVersion = initResult.ProtocolVersion
	c.serverCaps = initResult.Capabilities
	c.serverInfo = initResult.ServerInfo
	c.started = true
	c.mu.Unlock()

	if setter, ok := conn.(protocolVersionSetter); ok {
		setter.SetProtocolVersion(initResult.ProtocolVersion)
	}

	if err := c.Notify(ctx, notificationInitialized, &InitializedParams{}); err != nil {
		return err
	}

	if c.opts.InitialLoggingLevel != "" {
		if _, err := c.Request(ctx, methodSetLevel, &SetLoggingLevelParams{Level: c.opts.InitialLoggingLevel}); err != nil {
			return err
		}
	}
	return nil
}

// Stop sends no further requests, closes the transport, and fails every
// pending request with a shutdown error (spec §4.5 "stop").
func (c *Coordinator) Stop() error {
	var closeErr error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		pending := c.pending
		c.pending = make(map[string]*pendingEntry)
		c.started = false
		c.mu.Unlock()

		shutdownErr := fmt.Errorf("mcp: coordinator stopped")
		for _, e := range pending {
			select {
			case e.err <- shutdownErr:
			default:
			}
		}

		c.approvals.Shutdown()
		c.elicitations.Shutdown()

		if conn != nil {
			closeErr = conn.Close()
		}
	})
	return closeErr
}

// Restart stops and starts the coordinator, resetting negotiated capabilities
// and protocol version (spec §4.5 "restart!").
func (c *Coordinator) Restart(ctx context.Context) error {
	c.stopOnce = sync.Once{}
	if err := c.Stop(); err != nil {
		return err
	}
	return c.Start(ctx)
}

// Request sends a JSON-RPC request built from method and params, allocating
// an id, and blocks until the matching response arrives, the request times
// out, or ctx is done. On timeout it emits notifications/cancelled before
// returning a *TimeoutError (spec §4.5 "Timeouts").
func (c *Coordinator) Request(ctx context.Context, method string, params any) (*Result, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, &TransportError{Message: "not connected"}
	}
	id := atomic.AddInt64(&c.nextID, 1)
	jid := jsonrpc2.MakeID(id)
	entry := &pendingEntry{
		result: make(chan *Result, 1),
		err:    make(chan error, 1),
	}
	c.pending[jid.String()] = entry
	c.mu.Unlock()

	raw, err := internaljson.Marshal(params)
	if err != nil {
		c.removePending(jid.String())
		return nil, &TransportError{Message: "encode request params", Err: err}
	}
	req := &JSONRPCRequest{ID: jid, Method: method, Params: raw}

	if err := conn.Write(ctx, req); err != nil {
		c.removePending(jid.String())
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	select {
	case res := <-entry.result:
		return res, nil
	case err := <-entry.err:
		return nil, err
	case <-timeoutCtx.Done():
		c.removePending(jid.String())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		_ = c.Notify(context.Background(), notificationCancelled, &CancelledParams{
			Reason:    "Request timed out",
			RequestID: jid.Raw(),
		})
		return nil, &TimeoutError{RequestID: jid}
	}
}

// Notify sends a JSON-RPC notification (no id, no response expected).
func (c *Coordinator) Notify(ctx context.Context, method string, params any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return &TransportError{Message: "not connected"}
	}
	raw, err := internaljson.Marshal(params)
	if err != nil {
		return &TransportError{Message: "encode notification params", Err: err}
	}
	return conn.Write(ctx, &JSONRPCNotification{Method: method, Params: raw})
}

func (c *Coordinator) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop pulls envelopes from conn until it errors (including as a result
// of Stop closing the connection), dispatching each to the response-
// correlation table or to server-initiated request handling.
func (c *Coordinator) readLoop(conn Connection, done chan struct{}) {
	defer close(done)
	for {
		msg, err := conn.Read(context.Background())
		if err != nil {
			log.Printf("mcp: read loop ending: %v", err)
			return
		}
		sessionID := ""
		if s, ok := conn.(interface{ getSessionID() string }); ok {
			sessionID = s.getSessionID()
		}
		res := newResult(msg, sessionID)
		c.dispatch(res)
	}
}

func (c *Coordinator) dispatch(res *Result) {
	switch {
	case res.Response():
		c.mu.Lock()
		entry, ok := c.pending[res.ID().String()]
		if ok {
			delete(c.pending, res.ID().String())
		}
		c.mu.Unlock()
		if !ok {
			log.Printf("mcp: dropping response for unknown id %s", res.ID())
			return
		}
		entry.result <- res
	case res.Request():
		go c.handleServerRequest(res)
	case res.Notification():
		if res.Method() == notificationCancelled {
			c.cancelServerOp(res)
			return
		}
		c.dispatchNotification(res)
	default:
		log.Printf("mcp: dropping envelope of indeterminate shape")
	}
}

// dispatchNotification delivers a non-cancellation notification to the
// configured NotificationHandler, if any, synchronously on the read loop so
// that per-method transport order is preserved (spec §8). A panic inside the
// handler is logged and swallowed rather than propagated into the transport.
func (c *Coordinator) dispatchNotification(res *Result) {
	if c.opts.Notification == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("mcp: notification handler for %s panicked: %v", res.Method(), r)
		}
	}()
	c.opts.Notification(context.Background(), res)
}

// cancelServerOp interrupts the in-flight server-initiated request handler
// named by an inbound notifications/cancelled notification, if one is still
// running.
func (c *Coordinator) cancelServerOp(res *Result) {
	var params CancelledParams
	if err := res.DecodeParams(&params); err != nil {
		log.Printf("mcp: malformed notifications/cancelled: %v", err)
		return
	}
	key := jsonrpc2.MakeID(params.RequestID).String()
	c.mu.Lock()
	op := c.serverOps[key]
	c.mu.Unlock()
	if op != nil {
		op.Cancel()
	}
}

// pagedRequest repeatedly issues method with the cursor from the previous
// page's nextCursor (empty for the first page), calling
// collect on each page's raw result, until the server stops returning
// nextCursor (spec §4.5 "Pagination").
func (c *Coordinator) pagedRequest(ctx context.Context, method string, makeParams func(cursor string) any, collect func(*Result) error) error {
	cursor := ""
	for {
		res, err := c.Request(ctx, method, makeParams(cursor))
		if err != nil {
			return err
		}
		if err := res.RaiseError(); err != nil {
			return err
		}
		if err := collect(res); err != nil {
			return err
		}
		next, ok := res.NextCursor()
		if !ok || next == "" {
			return nil
		}
		cursor = next
	}
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
