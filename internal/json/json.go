// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package json provides internal JSON utilities.
//
// It wraps segmentio/encoding/json rather than the standard library's
// encoding/json, since it sits on the hot path for every inbound and
// outbound JSON-RPC envelope.
package json

import (
	segjson "github.com/segmentio/encoding/json"
)

// Unmarshal decodes data into v, matching struct fields the way the standard
// library does (segmentio/encoding/json follows its behavior for struct tags,
// including case-insensitive field-name matching).
func Unmarshal(data []byte, v any) error {
	return segjson.Unmarshal(data, v)
}

// Marshal encodes v to JSON.
func Marshal(v any) ([]byte, error) {
	return segjson.Marshal(v)
}
