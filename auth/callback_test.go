// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"net"
	"net/http"
	"testing"
)

func TestCallbackServerReceivesCode(t *testing.T) {
	// NewCallbackServer defaults to port 8080; override with an ephemeral
	// port to avoid collisions when tests run in parallel.
	s := NewCallbackServer(freeLoopbackPort(t), "")
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	go func() {
		http.Get(s.RedirectURI() + "?code=abc123&state=xyz")
	}()

	result, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Code != "abc123" || result.State != "xyz" {
		t.Errorf("Wait result = %+v, want Code=abc123 State=xyz", result)
	}
}

func TestCallbackServerRejectsMissingParams(t *testing.T) {
	s := NewCallbackServer(freeLoopbackPort(t), "")
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	resp, err := http.Get(s.RedirectURI())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func freeLoopbackPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
