// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

func newTestCoordinatorWithConn() (*Coordinator, *fakeConn) {
	conn := newFakeConn(nil)
	c := NewCoordinator(CoordinatorOptions{})
	c.conn = conn
	return c, conn
}

func newTestResult(t *testing.T, id JSONRPCID, method string, params json.RawMessage) *Result {
	t.Helper()
	return newResult(&JSONRPCRequest{ID: id, Method: method, Params: params}, "")
}

func TestPingResponseWritesEmptyResult(t *testing.T) {
	c, conn := newTestCoordinatorWithConn()
	id := jsonrpc2.MakeID(int64(1))
	if err := c.pingResponse(context.Background(), id); err != nil {
		t.Fatalf("pingResponse: %v", err)
	}
	writes := conn.writes()
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(writes))
	}
	resp, ok := writes[0].(*JSONRPCResponse)
	if !ok || resp.Error != nil {
		t.Fatalf("response = %+v, want non-error response", writes[0])
	}
}

func TestSamplingResponseDisabledReturnsError(t *testing.T) {
	c, conn := newTestCoordinatorWithConn()
	id := jsonrpc2.MakeID(int64(1))
	res := newTestResult(t, id, methodCreateMessage, json.RawMessage(`{}`))
	if err := c.samplingResponse(context.Background(), id, res); err != nil {
		t.Fatalf("samplingResponse: %v", err)
	}
	writes := conn.writes()
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(writes))
	}
	resp := writes[0].(*JSONRPCResponse)
	if resp.Error == nil {
		t.Fatal("expected error response when sampling is disabled")
	}
}

func TestElicitationResponseDisabledReturnsError(t *testing.T) {
	c, conn := newTestCoordinatorWithConn()
	id := jsonrpc2.MakeID(int64(1))
	res := newTestResult(t, id, methodElicit, json.RawMessage(`{"message":"?","requestedSchema":{}}`))
	if err := c.elicitationResponse(context.Background(), id, res); err != nil {
		t.Fatalf("elicitationResponse: %v", err)
	}
	writes := conn.writes()
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(writes))
	}
	resp := writes[0].(*JSONRPCResponse)
	if resp.Error == nil {
		t.Fatal("expected error response when elicitation is disabled")
	}
}

func TestRootsListResponseWithRootsConfigured(t *testing.T) {
	c, conn := newTestCoordinatorWithConn()
	c.opts.Roots = []*Root{{URI: "file:///tmp", Name: "tmp"}}
	id := jsonrpc2.MakeID(int64(1))
	if err := c.rootsListResponse(context.Background(), id); err != nil {
		t.Fatalf("rootsListResponse: %v", err)
	}
	writes := conn.writes()
	resp := writes[0].(*JSONRPCResponse)
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
	var result ListRootsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(result.Roots) != 1 || result.Roots[0].URI != "file:///tmp" {
		t.Errorf("Roots = %+v", result.Roots)
	}
}

func TestRequestApprovalWithNoHandlerApprovesAutomatically(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{})
	approved, reason, err := c.requestApproval(context.Background(), "some_tool", nil)
	if err != nil {
		t.Fatalf("requestApproval: %v", err)
	}
	if !approved {
		t.Error("requestApproval with no handler configured: approved = false, want true")
	}
	if reason != "" {
		t.Errorf("reason = %q, want empty", reason)
	}
}

func TestRequestApprovalDelegatesToHandler(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{
		Approval: func(ctx context.Context, toolName string, params any) (*ApprovalDecision, error) {
			if toolName != "danger" {
				t.Errorf("toolName = %q, want danger", toolName)
			}
			return &ApprovalDecision{Approved: false, Reason: "no thanks"}, nil
		},
	})
	approved, reason, err := c.requestApproval(context.Background(), "danger", nil)
	if err != nil {
		t.Fatalf("requestApproval: %v", err)
	}
	if approved {
		t.Error("approved = true, want false")
	}
	if reason != "no thanks" {
		t.Errorf("reason = %q, want %q", reason, "no thanks")
	}
}

func TestRequestApprovalDeferredResolvesThroughRegistry(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{
		Approval: func(ctx context.Context, toolName string, params any) (*ApprovalDecision, error) {
			return nil, nil
		},
	})

	type outcome struct {
		approved bool
		reason   string
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		approved, reason, err := c.requestApproval(context.Background(), "danger", nil)
		done <- outcome{approved, reason, err}
	}()

	var id string
	for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); {
		if c.approvals.Size() == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	c.approvals.mu.Lock()
	for k := range c.approvals.entries {
		id = k
	}
	c.approvals.mu.Unlock()
	if id == "" {
		t.Fatal("requestApproval did not register a pending entry in the registry")
	}
	if !c.approvals.Deny(id, "denied externally") {
		t.Fatal("Deny returned false for a pending entry")
	}

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("requestApproval: %v", o.err)
		}
		if o.approved {
			t.Error("approved = true, want false")
		}
		if o.reason != "denied externally" {
			t.Errorf("reason = %q, want %q", o.reason, "denied externally")
		}
	case <-time.After(time.Second):
		t.Fatal("requestApproval did not return after Deny")
	}
}
