// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	internaljson "github.com/mcpcoord/go-mcp-client/internal/json"
	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

func startTestClient(t *testing.T, opts CoordinatorOptions, onWrite func(*fakeConn, JSONRPCMessage)) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn(func(c *fakeConn, msg JSONRPCMessage) {
		if req, ok := msg.(*JSONRPCRequest); ok && req.Method == methodInitialize {
			respondToInitialize(defaultProtocolVersion)(c, msg)
			return
		}
		if onWrite != nil {
			onWrite(c, msg)
		}
	})
	opts.Transport = &fakeTransport{conn: conn}
	if opts.ClientInfo == nil {
		opts.ClientInfo = &Implementation{Name: "test-client", Version: "0.1"}
	}
	coord := NewCoordinator(opts)
	cl := NewClient(coord)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return cl, conn
}

func TestClientListToolsFollowsPagination(t *testing.T) {
	cl, _ := startTestClient(t, CoordinatorOptions{}, func(c *fakeConn, msg JSONRPCMessage) {
		req, ok := msg.(*JSONRPCRequest)
		if !ok || req.Method != methodListTools {
			return
		}
		var params ListToolsParams
		json.Unmarshal(req.Params, &params)

		var result ListToolsResult
		if params.Cursor == "" {
			result = ListToolsResult{
				Tools:      []*Tool{{Name: "first"}},
				NextCursor: "page-2",
			}
		} else {
			result = ListToolsResult{Tools: []*Tool{{Name: "second"}}}
		}
		raw, err := internaljson.Marshal(result)
		if err != nil {
			panic(err)
		}
		c.push(&JSONRPCResponse{ID: req.ID, Result: raw})
	})
	defer cl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tools, err := cl.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "first" || tools[1].Name != "second" {
		t.Fatalf("ListTools = %+v, want [first second]", tools)
	}
}

func TestClientCallToolDeniedApprovalProducesErrorResultNotGoError(t *testing.T) {
	cl, conn := startTestClient(t, CoordinatorOptions{
		Approval: func(ctx context.Context, toolName string, params any) (*ApprovalDecision, error) {
			return &ApprovalDecision{Approved: false, Reason: "blocked by policy"}, nil
		},
	}, nil)
	defer cl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := cl.CallTool(ctx, "dangerous_tool", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool returned Go error %v, want nil (denial is a result, not an error)", err)
	}
	if !result.IsError {
		t.Fatal("CallTool result.IsError = false for a denied call, want true")
	}
	text, ok := result.Content[0].(*TextContent)
	if !ok || text.Text != "blocked by policy" {
		t.Errorf("result.Content[0] = %+v, want TextContent %q", result.Content[0], "blocked by policy")
	}

	for _, msg := range conn.writes() {
		if req, ok := msg.(*JSONRPCRequest); ok && req.Method == methodCallTool {
			t.Error("CallTool sent a tools/call request despite approval denial")
		}
	}
}

func TestClientCallToolApprovedInvokesServer(t *testing.T) {
	cl, _ := startTestClient(t, CoordinatorOptions{
		Approval: func(ctx context.Context, toolName string, params any) (*ApprovalDecision, error) {
			return &ApprovalDecision{Approved: true}, nil
		},
	}, func(c *fakeConn, msg JSONRPCMessage) {
		req, ok := msg.(*JSONRPCRequest)
		if !ok || req.Method != methodCallTool {
			return
		}
		result := CallToolResult{Content: []Content{&TextContent{Text: "ok"}}}
		raw, err := internaljson.Marshal(result)
		if err != nil {
			panic(err)
		}
		c.push(&JSONRPCResponse{ID: req.ID, Result: raw})
	})
	defer cl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := cl.CallTool(ctx, "safe_tool", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatal("CallTool result.IsError = true, want false")
	}
	text := result.Content[0].(*TextContent)
	if text.Text != "ok" {
		t.Errorf("result text = %q, want ok", text.Text)
	}
}

func TestClientPingRaisesServerError(t *testing.T) {
	cl, _ := startTestClient(t, CoordinatorOptions{}, func(c *fakeConn, msg JSONRPCMessage) {
		req, ok := msg.(*JSONRPCRequest)
		if !ok || req.Method != methodPing {
			return
		}
		c.push(&JSONRPCResponse{ID: req.ID, Error: &jsonrpc2.WireError{Code: -32000, Message: "server unhappy"}})
	})
	defer cl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := cl.Ping(ctx)
	rerr, ok := err.(*ResponseError)
	if !ok {
		t.Fatalf("Ping() error = %v (%T), want *ResponseError", err, err)
	}
	if rerr.Message != "server unhappy" {
		t.Errorf("ResponseError.Message = %q, want %q", rerr.Message, "server unhappy")
	}
}
