// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package json

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	type Nested struct {
		Field string `json:"field"`
	}
	type Target struct {
		Name   string  `json:"name"`
		Nested *Nested `json:"nested,omitempty"`
	}

	want := Target{Name: "value", Nested: &Nested{Field: "nested"}}

	data, err := Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Target
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	var v struct{}
	if err := Unmarshal([]byte(`{`), &v); err == nil {
		t.Error("Unmarshal of truncated JSON: got nil error, want error")
	}
}
