// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import "testing"

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://MCP.EXAMPLE.COM:443/api/", "https://mcp.example.com/api"},
		{"http://MCP.EXAMPLE.COM:80/api/", "http://mcp.example.com/api"},
		{"https://mcp.example.com:8443/api", "https://mcp.example.com:8443/api"},
		{"https://mcp.example.com/api", "https://mcp.example.com/api"},
	}
	for _, tt := range tests {
		got, err := normalizeServerURL(tt.in)
		if err != nil {
			t.Errorf("normalizeServerURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeServerURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeServerURLIdempotent(t *testing.T) {
	in := "https://MCP.EXAMPLE.COM:443/api/"
	once, err := normalizeServerURL(in)
	if err != nil {
		t.Fatalf("normalizeServerURL: %v", err)
	}
	twice, err := normalizeServerURL(once)
	if err != nil {
		t.Fatalf("normalizeServerURL: %v", err)
	}
	if once != twice {
		t.Errorf("normalizeServerURL not idempotent: %q != %q", once, twice)
	}
}
