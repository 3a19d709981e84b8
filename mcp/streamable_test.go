// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

func TestStreamableTransportInlineJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Mcp-Session-Id", "sess-123")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	defer server.Close()

	transport := NewStreamableTransport(server.URL, &StreamableTransportOptions{DisableEventStream: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	req := &jsonrpc2.Request{ID: jsonrpc2.MakeID(int64(1)), Method: "ping"}
	if err := conn.Write(ctx, req); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp, ok := msg.(*jsonrpc2.Response)
	if !ok || !resp.ID.Equal(req.ID) {
		t.Fatalf("Read returned %+v, want matching response", msg)
	}

	sc, ok := conn.(*streamableConn)
	if !ok {
		t.Fatalf("Connect returned %T, want *streamableConn", conn)
	}
	if sc.getSessionID() != "sess-123" {
		t.Errorf("session id = %q, want sess-123", sc.getSessionID())
	}
}

func TestStreamableTransportInlinePOSTBodyOverLimitErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"padding":"01234567890123456789"}}`)
	}))
	defer server.Close()

	transport := NewStreamableTransport(server.URL, &StreamableTransportOptions{
		DisableEventStream: true,
		MaxBodyBytes:       16,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	req := &jsonrpc2.Request{ID: jsonrpc2.MakeID(int64(1)), Method: "ping"}
	err = conn.Write(ctx, req)
	if err == nil {
		t.Fatal("Write over the configured MaxBodyBytes succeeded, want an error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Write error = %v (%T), want *TransportError", err, err)
	}
}

func TestStreamableTransportSSEUpgradeResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "id: 1\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "event: stop\ndata: {}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	transport := NewStreamableTransport(server.URL, &StreamableTransportOptions{DisableEventStream: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	req := &jsonrpc2.Request{ID: jsonrpc2.MakeID(int64(1)), Method: "ping"}
	if err := conn.Write(ctx, req); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := msg.(*jsonrpc2.Response); !ok {
		t.Fatalf("Read returned %T, want *jsonrpc2.Response", msg)
	}
}

func TestStreamableTransportSessionExpiredOn404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	transport := NewStreamableTransport(server.URL, &StreamableTransportOptions{
		SessionID:          "sess-expired",
		DisableEventStream: true,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	req := &jsonrpc2.Request{ID: jsonrpc2.MakeID(int64(1)), Method: "ping"}
	err = conn.Write(ctx, req)
	sessErr, ok := err.(*SessionExpiredError)
	if !ok {
		t.Fatalf("Write error type = %T (%v), want *SessionExpiredError", err, err)
	}
	if sessErr.SessionID != "sess-expired" {
		t.Errorf("SessionExpiredError.SessionID = %q, want sess-expired", sessErr.SessionID)
	}

	sc := conn.(*streamableConn)
	if sc.getSessionID() != "" {
		t.Errorf("session id after 404 = %q, want cleared", sc.getSessionID())
	}
}

func TestStreamableTransportUnauthorizedWithoutOAuthIsUnrecoverable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Www-Authenticate", `Bearer realm="mcp"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	transport := NewStreamableTransport(server.URL, &StreamableTransportOptions{DisableEventStream: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	req := &jsonrpc2.Request{ID: jsonrpc2.MakeID(int64(1)), Method: "ping"}
	err = conn.Write(ctx, req)
	if _, ok := err.(*AuthenticationRequiredError); !ok {
		t.Fatalf("Write error type = %T (%v), want *AuthenticationRequiredError", err, err)
	}
}

func TestStreamableTransportDeleteOnCloseWhenSessionEstablished(t *testing.T) {
	var sawDelete bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			sawDelete = true
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Mcp-Session-Id", "sess-1")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	defer server.Close()

	transport := NewStreamableTransport(server.URL, &StreamableTransportOptions{DisableEventStream: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	req := &jsonrpc2.Request{ID: jsonrpc2.MakeID(int64(1)), Method: "ping"}
	if err := conn.Write(ctx, req); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sawDelete {
		t.Error("Close() did not issue a DELETE for an established session")
	}
}

func TestStreamableTransportMethodNotAllowedIsBenign(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer server.Close()

	transport := NewStreamableTransport(server.URL, &StreamableTransportOptions{DisableEventStream: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	notif := &jsonrpc2.Notification{Method: "notifications/initialized"}
	if err := conn.Write(ctx, notif); err != nil {
		t.Fatalf("Write on 405 response: %v, want nil (benign)", err)
	}
}
