// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"

	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

// JSONRPCID is a JSON-RPC request/response identifier.
type JSONRPCID = jsonrpc2.ID

// JSONRPCMessage is implemented by JSONRPCRequest, JSONRPCResponse, and
// JSONRPCNotification.
type JSONRPCMessage = jsonrpc2.Message

// JSONRPCRequest is a JSON-RPC request: it carries both an id and a method.
type JSONRPCRequest = jsonrpc2.Request

// JSONRPCNotification is a JSON-RPC notification: it carries a method but no
// id.
type JSONRPCNotification = jsonrpc2.Notification

// JSONRPCResponse is a JSON-RPC response: it carries an id and exactly one
// of result or error.
type JSONRPCResponse = jsonrpc2.Response

// readBatch decodes a JSON-RPC HTTP body that may be either a single
// envelope or a batch array, per spec §4.3.3.
func readBatch(body []byte) ([]JSONRPCMessage, bool, error) {
	return jsonrpc2.ReadBatch(body)
}

// Connection is a logical duplex channel of JSON-RPC messages between the
// client core and a single MCP endpoint.
type Connection interface {
	// Read blocks until a message is available, the connection is closed, or
	// ctx is done.
	Read(ctx context.Context) (JSONRPCMessage, error)
	// Write sends a single message, returning once it has been accepted for
	// delivery (not necessarily acknowledged by the peer).
	Write(ctx context.Context, msg JSONRPCMessage) error
	// Close releases all resources held by the connection. Close is safe to
	// call more than once and from concurrent goroutines.
	Close() error
}

// Transport establishes a Connection to an MCP endpoint. Each of stdio,
// legacy SSE, and streamable HTTP implements Transport.
type Transport interface {
	Connect(ctx context.Context) (Connection, error)
}

// classifyEnvelope reports which of the three JSON-RPC message shapes msg
// is, using the priority order required by spec §4.1: response, then
// request, then notification.
func classifyEnvelope(msg JSONRPCMessage) (isResponse, isRequest, isNotification bool) {
	switch msg.(type) {
	case *JSONRPCResponse:
		return true, false, false
	case *JSONRPCRequest:
		return false, true, false
	case *JSONRPCNotification:
		return false, false, true
	default:
		return false, false, false
	}
}
