// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// DefaultMaxBodyBytes is the default maximum size (in bytes) the streamable
// HTTP transport will read from a single response body: the inline JSON
// reply to a POST, or the whole of one SSE stream (a chunked upgrade or one
// long-lived GET connection). An inline reply over the limit is an error; an
// SSE stream is cut off at the limit.
//
// This limit exists to prevent a misbehaving or malicious server from
// exhausting client memory with an unbounded response.
const DefaultMaxBodyBytes int64 = 1_000_000

// effectiveMaxBodyBytes converts the user-configured maxBodyBytes value to an
// effective limit.
//
// Semantics:
//   - maxBodyBytes == 0: use DefaultMaxBodyBytes
//   - maxBodyBytes  < 0: no limit
//   - maxBodyBytes  > 0: use maxBodyBytes
func effectiveMaxBodyBytes(maxBodyBytes int64) int64 {
	switch {
	case maxBodyBytes == 0:
		return DefaultMaxBodyBytes
	case maxBodyBytes < 0:
		return 0
	default:
		return maxBodyBytes
	}
}
