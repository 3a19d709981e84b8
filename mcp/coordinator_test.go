// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"sync"
	"testing"
	"time"

	internaljson "github.com/mcpcoord/go-mcp-client/internal/json"
	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

// fakeConn is an in-memory Connection standing in for a real transport, so
// the coordinator's handshake, correlation, and dispatch logic can be
// exercised without a subprocess or network listener.
type fakeConn struct {
	incoming chan JSONRPCMessage
	closed   chan struct{}
	closeOne sync.Once

	mu      sync.Mutex
	sent    []JSONRPCMessage
	onWrite func(*fakeConn, JSONRPCMessage)
}

func newFakeConn(onWrite func(*fakeConn, JSONRPCMessage)) *fakeConn {
	return &fakeConn{
		incoming: make(chan JSONRPCMessage, 32),
		closed:   make(chan struct{}),
		onWrite:  onWrite,
	}
}

func (c *fakeConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.closed:
		return nil, &TransportError{Message: "closed"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	if c.onWrite != nil {
		c.onWrite(c, msg)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOne.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(msg JSONRPCMessage) {
	select {
	case c.incoming <- msg:
	case <-c.closed:
	}
}

func (c *fakeConn) writes() []JSONRPCMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]JSONRPCMessage(nil), c.sent...)
}

type fakeTransport struct {
	conn *fakeConn
}

func (t *fakeTransport) Connect(ctx context.Context) (Connection, error) {
	return t.conn, nil
}

// respondToInitialize auto-replies to an initialize request with protocolVersion
// and otherwise-empty capabilities, matching the requesting id.
func respondToInitialize(protocolVersion string) func(*fakeConn, JSONRPCMessage) {
	return func(c *fakeConn, msg JSONRPCMessage) {
		req, ok := msg.(*JSONRPCRequest)
		if !ok || req.Method != methodInitialize {
			return
		}
		result := &InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      &Implementation{Name: "fake-server", Version: "1.0"},
			Capabilities:    &ServerCapabilities{},
		}
		raw, err := internaljson.Marshal(result)
		if err != nil {
			panic(err)
		}
		c.push(&JSONRPCResponse{ID: req.ID, Result: raw})
	}
}

func TestCoordinatorStartPerformsHandshake(t *testing.T) {
	conn := newFakeConn(respondToInitialize(defaultProtocolVersion))
	coord := NewCoordinator(CoordinatorOptions{
		Transport:  &fakeTransport{conn: conn},
		ClientInfo: &Implementation{Name: "test-client", Version: "0.1"},
	})
	defer coord.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if coord.ServerInfo() == nil || coord.ServerInfo().Name != "fake-server" {
		t.Errorf("ServerInfo() = %+v, want Name fake-server", coord.ServerInfo())
	}
	if coord.ServerCapabilities() == nil {
		t.Error("ServerCapabilities() = nil, want non-nil")
	}

	var sawInitialized bool
	for _, msg := range conn.writes() {
		if n, ok := msg.(*JSONRPCNotification); ok && n.Method == notificationInitialized {
			sawInitialized = true
		}
	}
	if !sawInitialized {
		t.Error("Start() did not send notifications/initialized after the handshake")
	}
}

func TestCoordinatorStartRejectsUnsupportedProtocolVersion(t *testing.T) {
	conn := newFakeConn(respondToInitialize("1999-01-01"))
	coord := NewCoordinator(CoordinatorOptions{
		Transport:  &fakeTransport{conn: conn},
		ClientInfo: &Implementation{Name: "test-client", Version: "0.1"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := coord.Start(ctx)
	if _, ok := err.(*UnsupportedProtocolVersionError); !ok {
		t.Fatalf("Start() error = %v (%T), want *UnsupportedProtocolVersionError", err, err)
	}
}

func TestCoordinatorRequestTimeoutSendsCancelledNotification(t *testing.T) {
	// onWrite (respondToInitialize) answers only the initialize request, so
	// the handshake completes; the request issued afterwards is never
	// answered and exercises the RequestTimeout path.
	conn := newFakeConn(respondToInitialize(defaultProtocolVersion))
	coord := NewCoordinator(CoordinatorOptions{
		Transport:      &fakeTransport{conn: conn},
		ClientInfo:     &Implementation{Name: "test-client", Version: "0.1"},
		RequestTimeout: 30 * time.Millisecond,
	})
	defer coord.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Silence auto-replies for subsequent requests: onWrite still fires but
	// only answers methodInitialize, so tools/list here simply hangs.
	_, err := coord.Request(context.Background(), methodListTools, &ListToolsParams{})
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("Request() error = %v (%T), want *TimeoutError", err, err)
	}

	var sawCancelled bool
	for _, msg := range conn.writes() {
		if n, ok := msg.(*JSONRPCNotification); ok && n.Method == notificationCancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Error("timed-out Request() did not send notifications/cancelled")
	}
}

func TestCoordinatorDispatchesServerInitiatedPing(t *testing.T) {
	conn := newFakeConn(respondToInitialize(defaultProtocolVersion))
	coord := NewCoordinator(CoordinatorOptions{
		Transport:  &fakeTransport{conn: conn},
		ClientInfo: &Implementation{Name: "test-client", Version: "0.1"},
	})
	defer coord.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	pingID := jsonrpc2.MakeID(int64(999))
	conn.push(&JSONRPCRequest{ID: pingID, Method: methodPing})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range conn.writes() {
			if resp, ok := msg.(*JSONRPCResponse); ok && resp.ID.Equal(pingID) {
				if resp.Error != nil {
					t.Fatalf("ping response carried an error: %+v", resp.Error)
				}
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("coordinator never responded to the server-initiated ping")
}

func TestCoordinatorDispatchesNotificationToHandler(t *testing.T) {
	conn := newFakeConn(respondToInitialize(defaultProtocolVersion))
	received := make(chan *Result, 1)
	coord := NewCoordinator(CoordinatorOptions{
		Transport:  &fakeTransport{conn: conn},
		ClientInfo: &Implementation{Name: "test-client", Version: "0.1"},
		Notification: func(ctx context.Context, n *Result) {
			received <- n
		},
	})
	defer coord.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	raw, err := internaljson.Marshal(&ProgressNotificationParams{
		ProgressToken: "tok",
		Message:       "halfway",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	conn.push(&JSONRPCNotification{Method: notificationProgress, Params: raw})

	select {
	case n := <-received:
		if n.Method() != notificationProgress {
			t.Errorf("Method() = %q, want %q", n.Method(), notificationProgress)
		}
		var params ProgressNotificationParams
		if err := n.DecodeParams(&params); err != nil {
			t.Fatalf("DecodeParams: %v", err)
		}
		if params.Message != "halfway" {
			t.Errorf("Message = %q, want halfway", params.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification handler was never invoked")
	}
}

func TestCoordinatorDispatchSwallowsNotificationHandlerPanic(t *testing.T) {
	conn := newFakeConn(respondToInitialize(defaultProtocolVersion))
	coord := NewCoordinator(CoordinatorOptions{
		Transport:  &fakeTransport{conn: conn},
		ClientInfo: &Implementation{Name: "test-client", Version: "0.1"},
		Notification: func(ctx context.Context, n *Result) {
			panic("boom")
		},
	})
	defer coord.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	raw, err := internaljson.Marshal(&ProgressNotificationParams{ProgressToken: "tok"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	coord.dispatch(newResult(&JSONRPCNotification{Method: notificationProgress, Params: raw}, ""))

	// A panicking handler must not crash the test process or the
	// coordinator; a follow-up ping still gets answered.
	pingID := jsonrpc2.MakeID(int64(1))
	conn.push(&JSONRPCRequest{ID: pingID, Method: methodPing})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range conn.writes() {
			if resp, ok := msg.(*JSONRPCResponse); ok && resp.ID.Equal(pingID) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("coordinator stopped responding after a notification handler panic")
}

func TestCoordinatorRootsListResponseWithoutRootsIsError(t *testing.T) {
	conn := newFakeConn(respondToInitialize(defaultProtocolVersion))
	coord := NewCoordinator(CoordinatorOptions{
		Transport:  &fakeTransport{conn: conn},
		ClientInfo: &Implementation{Name: "test-client", Version: "0.1"},
	})
	defer coord.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rootsID := jsonrpc2.MakeID(int64(42))
	conn.push(&JSONRPCRequest{ID: rootsID, Method: methodListRoots})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range conn.writes() {
			if resp, ok := msg.(*JSONRPCResponse); ok && resp.ID.Equal(rootsID) {
				if resp.Error == nil {
					t.Fatal("roots/list response with no configured roots should carry an error")
				}
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("coordinator never responded to the server-initiated roots/list")
}
