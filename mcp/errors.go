// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "fmt"

// TransportError reports a socket/IO failure, an unparseable body, or an
// HTTP 4xx/5xx response that doesn't merit a more specific classification.
// It does not kill the coordinator; it is surfaced to the caller that
// issued the request.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("transport error: %s", e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that a request's deadline elapsed before a response
// arrived.
type TimeoutError struct {
	RequestID JSONRPCID
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out", e.RequestID)
}

// SessionExpiredError reports an HTTP 404 from the streamable endpoint. The
// transport clears its session id, so the next request carries none; the
// coordinator does not re-run the initialize handshake on its own.
type SessionExpiredError struct {
	SessionID string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session %q expired", e.SessionID)
}

// AuthenticationRequiredError reports an HTTP 401 for which the OAuth retry
// was exhausted, failed, or is unconfigured. The application must obtain a
// new token out of band.
type AuthenticationRequiredError struct {
	ServerURL string
	Cause     error
}

func (e *AuthenticationRequiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication required for %s: %v", e.ServerURL, e.Cause)
	}
	return fmt.Sprintf("authentication required for %s", e.ServerURL)
}

func (e *AuthenticationRequiredError) Unwrap() error { return e.Cause }

// UnsupportedProtocolVersionError reports that the server's initialize
// response named a protocol version this client does not implement. It is
// fatal to the session.
type UnsupportedProtocolVersionError struct {
	Version string
}

func (e *UnsupportedProtocolVersionError) Error() string {
	return fmt.Sprintf("unsupported protocol version %q", e.Version)
}

// UnsupportedTransportError reports that the caller requested an adapter
// capability the configured transport does not provide.
type UnsupportedTransportError struct {
	Transport string
	Feature   string
}

func (e *UnsupportedTransportError) Error() string {
	return fmt.Sprintf("transport %q does not support %s", e.Transport, e.Feature)
}

// UnsupportedFeatureError reports that the caller requested a capability
// the negotiated session does not advertise.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("unsupported feature %q", e.Feature)
}

// InvalidFormatError reports a malformed handler return value or envelope.
type InvalidFormatError struct {
	Detail string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid format: %s", e.Detail)
}

// InvalidApprovalDecisionError reports that an approval handler returned a
// value outside of its expected decision set; the coordinator treats this
// as a denial.
type InvalidApprovalDecisionError struct {
	Got string
}

func (e *InvalidApprovalDecisionError) Error() string {
	return fmt.Sprintf("invalid approval decision %q", e.Got)
}

// RequestCancelledError reports that an explicit cancellation interrupted a
// handler. It is swallowed at the handler boundary; no response is sent for
// it.
type RequestCancelledError struct {
	RequestID JSONRPCID
}

func (e *RequestCancelledError) Error() string {
	return fmt.Sprintf("request %s cancelled", e.RequestID)
}

// ResponseError wraps a JSON-RPC error object returned by the server,
// surfacing its code and message to the caller.
type ResponseError struct {
	Code    int64
	Message string
	Data    any
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}
