// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"testing"
)

func TestDecodeMessageClassifiesByPriority(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string // "request", "response", "notification", or "error"
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{"response result", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response"},
		{"response error", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"not found"}}`, "response"},
		{
			// Spec §4.1: priority order response > request > notification.
			// An envelope carrying both id+method AND result is malformed as a
			// request (method+result) but must be classified (and rejected) as
			// a response, not silently accepted as a request.
			name: "ambiguous result plus method is rejected as malformed response",
			json: `{"jsonrpc":"2.0","id":1,"method":"x","result":{}}`,
			want: "error",
		},
		{"missing jsonrpc version", `{"id":1,"method":"x"}`, "error"},
		{"both result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"m"}}`, "error"},
		{"response missing id", `{"jsonrpc":"2.0","result":{}}`, "error"},
		{"request missing method", `{"jsonrpc":"2.0","id":1}`, "error"},
		{"neither request response nor notification", `{"jsonrpc":"2.0"}`, "error"},
		{"parse error", `{not json`, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.json))
			if tt.want == "error" {
				if err == nil {
					t.Fatalf("DecodeMessage(%q) = %v, want error", tt.json, msg)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessage(%q): %v", tt.json, err)
			}
			switch tt.want {
			case "request":
				if _, ok := msg.(*Request); !ok {
					t.Errorf("DecodeMessage(%q) = %T, want *Request", tt.json, msg)
				}
			case "notification":
				if _, ok := msg.(*Notification); !ok {
					t.Errorf("DecodeMessage(%q) = %T, want *Notification", tt.json, msg)
				}
			case "response":
				if _, ok := msg.(*Response); !ok {
					t.Errorf("DecodeMessage(%q) = %T, want *Response", tt.json, msg)
				}
			}
		})
	}
}

func TestDecodeMessageParseErrorCode(t *testing.T) {
	_, err := DecodeMessage([]byte(`{not json`))
	werr, ok := err.(*WireError)
	if !ok {
		t.Fatalf("error type = %T, want *WireError", err)
	}
	if werr.Code != CodeParseError {
		t.Errorf("code = %d, want %d", werr.Code, CodeParseError)
	}
}

func TestIDEqualNumericAndString(t *testing.T) {
	a := MakeID(int64(7))
	b := MakeID("7")
	if !a.Equal(b) {
		t.Errorf("MakeID(7).Equal(MakeID(\"7\")) = false, want true")
	}
	if MakeID(nil).Equal(a) {
		t.Errorf("MakeID(nil).Equal(MakeID(7)) = true, want false")
	}
	if !MakeID(nil).Equal(MakeID(nil)) {
		t.Errorf("MakeID(nil).Equal(MakeID(nil)) = false, want true")
	}
}

func TestIDJSONRoundTrip(t *testing.T) {
	for _, v := range []any{int64(42), "s-1", nil} {
		id := MakeID(v)
		data, err := id.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON(%v): %v", v, err)
		}
		var got ID
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", data, err)
		}
		if !got.Equal(id) {
			t.Errorf("round trip of %v: got %v, want %v", v, got, id)
		}
	}
}

func TestEncodeMessageRoundTrip(t *testing.T) {
	req := &Request{ID: MakeID(int64(1)), Method: "tools/list"}
	data, err := EncodeMessage(req)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	msg, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	got, ok := msg.(*Request)
	if !ok {
		t.Fatalf("decoded %T, want *Request", msg)
	}
	if got.Method != req.Method || !got.ID.Equal(req.ID) {
		t.Errorf("round trip = %+v, want %+v", got, req)
	}
}

func TestReadBatchSingleAndArray(t *testing.T) {
	single := `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	msgs, isBatch, err := ReadBatch([]byte(single))
	if err != nil {
		t.Fatalf("ReadBatch(single): %v", err)
	}
	if isBatch {
		t.Error("ReadBatch(single) reported isBatch=true")
	}
	if len(msgs) != 1 {
		t.Fatalf("ReadBatch(single) returned %d messages, want 1", len(msgs))
	}

	batch := `[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/initialized"}]`
	msgs, isBatch, err = ReadBatch([]byte(batch))
	if err != nil {
		t.Fatalf("ReadBatch(batch): %v", err)
	}
	if !isBatch {
		t.Error("ReadBatch(batch) reported isBatch=false")
	}
	if len(msgs) != 2 {
		t.Fatalf("ReadBatch(batch) returned %d messages, want 2", len(msgs))
	}
}

func TestReadBatchEmptyBody(t *testing.T) {
	if _, _, err := ReadBatch([]byte("  ")); err == nil {
		t.Error("ReadBatch(empty): got nil error, want error")
	}
}

func TestReadBatchMalformedArrayElement(t *testing.T) {
	if _, _, err := ReadBatch([]byte(`[{"jsonrpc":"2.0"}]`)); err == nil {
		t.Error("ReadBatch(malformed element): got nil error, want error")
	}
}
