// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "testing"

func TestGetSetProgressTokenRoundTrip(t *testing.T) {
	params := &CallToolParams{Name: "x"}
	if tok := getProgressToken(params); tok != nil {
		t.Fatalf("getProgressToken on fresh params = %v, want nil", tok)
	}
	setProgressToken(params, "abc")
	if tok := getProgressToken(params); tok != "abc" {
		t.Errorf("getProgressToken = %v, want abc", tok)
	}
}

func TestSetProgressTokenAllocatesMeta(t *testing.T) {
	params := &CallToolParams{Name: "x"}
	if params.Meta != nil {
		t.Fatal("expected nil Meta before setProgressToken")
	}
	setProgressToken(params, 42)
	if params.Meta == nil {
		t.Fatal("setProgressToken did not allocate Meta map")
	}
	if params.Meta[progressTokenKey] != 42 {
		t.Errorf("Meta[progressToken] = %v, want 42", params.Meta[progressTokenKey])
	}
}

func TestMetaOfNonStructReturnsNil(t *testing.T) {
	if m := metaOf(42); m != nil {
		t.Errorf("metaOf(42) = %v, want nil", m)
	}
	if m := metaOf(nil); m != nil {
		t.Errorf("metaOf(nil) = %v, want nil", m)
	}
}

func TestSetProgressTokenOnNonPointerIsNoOp(t *testing.T) {
	// Must not panic.
	setProgressToken(CallToolParams{Name: "x"}, "abc")
}

func TestGetProgressTokenOnNilPointerIsNil(t *testing.T) {
	var params *CallToolParams
	if tok := getProgressToken(params); tok != nil {
		t.Errorf("getProgressToken(nil pointer) = %v, want nil", tok)
	}
}
