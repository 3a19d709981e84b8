// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"

	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

// Result is the coordinator's normalized view of one inbound JSON-RPC
// envelope, built from a validated message plus the session id active when
// it arrived (spec §4.2). It exposes the envelope's fields uniformly
// regardless of whether the underlying message was a request, a response, or
// a notification, plus a set of boolean classifiers the coordinator and
// response-handler dispatch use to decide what to do with it.
type Result struct {
	// SessionID is the session id that was active when this envelope was
	// received, for the handlers that need to correlate a reply with a
	// specific streamable-HTTP session.
	SessionID string

	id     JSONRPCID
	method string
	params json.RawMessage
	result json.RawMessage

	isResponse, isRequest, isNotification bool

	hasError   bool
	errCode    int64
	errMessage string
	errData    any
}

// newResult classifies msg per spec §4.1 and wraps it as a Result tagged
// with sessionID.
func newResult(msg JSONRPCMessage, sessionID string) *Result {
	r := &Result{SessionID: sessionID}
	isResp, isReq, isNotif := classifyEnvelope(msg)
	r.isResponse, r.isRequest, r.isNotification = isResp, isReq, isNotif
	switch m := msg.(type) {
	case *JSONRPCResponse:
		r.id = m.ID
		r.result = m.Result
		if m.Error != nil {
			r.hasError = true
			r.errCode = m.Error.Code
			r.errMessage = m.Error.Message
			r.errData = m.Error.Data
		}
	case *JSONRPCRequest:
		r.id = m.ID
		r.method = m.Method
		r.params = m.Params
	case *JSONRPCNotification:
		r.method = m.Method
		r.params = m.Params
	}
	return r
}

// ID is the envelope's JSON-RPC id. It is the zero ID for notifications.
func (r *Result) ID() JSONRPCID { return r.id }

// Method is the envelope's method name. It is empty for responses.
func (r *Result) Method() string { return r.method }

// Notification reports whether this envelope is a notification.
func (r *Result) Notification() bool { return r.isNotification }

// Request reports whether this envelope is a request (either the initial
// client-sent request this is a reply to, or, when received inbound, a
// server-initiated request awaiting a response).
func (r *Result) Request() bool { return r.isRequest }

// Response reports whether this envelope is a response to a request this
// client sent.
func (r *Result) Response() bool { return r.isResponse }

// Ping reports whether this is a server-initiated ping request.
func (r *Result) Ping() bool { return r.isRequest && r.method == methodPing }

// Roots reports whether this is a server-initiated roots/list request.
func (r *Result) Roots() bool { return r.isRequest && r.method == methodListRoots }

// Sampling reports whether this is a server-initiated sampling/createMessage
// request.
func (r *Result) Sampling() bool { return r.isRequest && r.method == methodCreateMessage }

// Elicitation reports whether this is a server-initiated elicitation/create
// request.
func (r *Result) Elicitation() bool { return r.isRequest && r.method == methodElicit }

// toolCallOutcomeProbe mirrors just enough of CallToolResult to classify a
// tools/call response without requiring the caller to have decoded it yet.
type toolCallOutcomeProbe struct {
	IsError bool `json:"isError"`
}

// ToolSuccess reports whether this is a successful response to a tools/call
// request: no protocol-level error, and the tool itself did not report
// isError=true.
func (r *Result) ToolSuccess() bool {
	return r.isResponse && !r.hasError && !r.toolIsError()
}

// ExecutionError reports whether this is a tools/call response in which the
// tool itself reported failure (isError=true in the result), as distinct
// from a protocol-level ResponseError (see RaiseError).
func (r *Result) ExecutionError() bool {
	return r.isResponse && !r.hasError && r.toolIsError()
}

func (r *Result) toolIsError() bool {
	if len(r.result) == 0 {
		return false
	}
	var probe toolCallOutcomeProbe
	_ = json.Unmarshal(r.result, &probe)
	return probe.IsError
}

// MatchingID reports whether id string-compares equal to this Result's id,
// treating numeric and string representations of the same value as equal.
func (r *Result) MatchingID(id JSONRPCID) bool {
	return r.id.Equal(id)
}

// RaiseError converts a response carrying a JSON-RPC error object into the
// typed *ResponseError, or returns nil if this Result is not an error
// response.
func (r *Result) RaiseError() error {
	if !r.hasError {
		return nil
	}
	return &ResponseError{Code: r.errCode, Message: r.errMessage, Data: r.errData}
}

// cursorProbe extracts nextCursor from a paginated list result without
// requiring the full typed result.
type cursorProbe struct {
	NextCursor string `json:"nextCursor"`
}

// NextCursor returns the result's nextCursor field and whether it was
// present, for the coordinator's pagination loops.
func (r *Result) NextCursor() (string, bool) {
	if len(r.result) == 0 {
		return "", false
	}
	var probe cursorProbe
	if err := json.Unmarshal(r.result, &probe); err != nil || probe.NextCursor == "" {
		return "", false
	}
	return probe.NextCursor, true
}

// DecodeParams strictly unmarshals this envelope's params into v, rejecting
// case-variant duplicate keys and unknown fields (anti-smuggling; spec §4.1
// envelope validation extended to the typed payload).
func (r *Result) DecodeParams(v any) error {
	if len(r.params) == 0 {
		return nil
	}
	return jsonrpc2.StrictUnmarshal(r.params, v)
}

// DecodeResult strictly unmarshals this envelope's result into v.
func (r *Result) DecodeResult(v any) error {
	if len(r.result) == 0 {
		return nil
	}
	return jsonrpc2.StrictUnmarshal(r.result, v)
}
