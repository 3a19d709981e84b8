// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"io/fs"
	"testing"
)

func TestMemorySessionStoreLoadMissingReturnsErrNotExist(t *testing.T) {
	s := NewMemorySessionStore()
	_, err := s.Load(context.Background(), "nope")
	if err != fs.ErrNotExist {
		t.Fatalf("Load on missing session: err = %v, want fs.ErrNotExist", err)
	}
}

func TestMemorySessionStoreStoreThenLoad(t *testing.T) {
	s := NewMemorySessionStore()
	state := &SessionState{LogLevel: LoggingLevel("info")}
	if err := s.Store(context.Background(), "sess-1", state); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := s.Load(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LogLevel != LoggingLevel("info") {
		t.Errorf("LogLevel = %v, want info", got.LogLevel)
	}
}

func TestMemorySessionStoreDelete(t *testing.T) {
	s := NewMemorySessionStore()
	if err := s.Store(context.Background(), "sess-1", &SessionState{}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Delete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(context.Background(), "sess-1"); err != fs.ErrNotExist {
		t.Errorf("Load after Delete: err = %v, want fs.ErrNotExist", err)
	}
}

func TestMemorySessionStoreDeleteMissingIsNoOp(t *testing.T) {
	s := NewMemorySessionStore()
	if err := s.Delete(context.Background(), "never-existed"); err != nil {
		t.Errorf("Delete on missing session: err = %v, want nil", err)
	}
}
