// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPromiseResolveThenAwait(t *testing.T) {
	p := NewPromise[int]()
	if p.Settled() {
		t.Fatal("Settled() = true before any settle call")
	}
	p.Resolve(42)
	if !p.Settled() {
		t.Fatal("Settled() = false after Resolve")
	}
	v, err := p.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if v != 42 {
		t.Errorf("Await value = %d, want 42", v)
	}
}

func TestPromiseRejectThenAwait(t *testing.T) {
	p := NewPromise[string]()
	wantErr := errors.New("boom")
	p.Reject(wantErr)
	_, err := p.Await(context.Background())
	if err != wantErr {
		t.Errorf("Await err = %v, want %v", err, wantErr)
	}
}

func TestPromiseFirstSettlementWins(t *testing.T) {
	p := NewPromise[int]()
	p.Resolve(1)
	p.Resolve(2)
	p.Reject(errors.New("ignored"))
	v, err := p.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if v != 1 {
		t.Errorf("value = %d, want 1 (first settlement)", v)
	}
}

func TestPromiseAwaitContextCancellation(t *testing.T) {
	p := NewPromise[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Await(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Await err = %v, want context.DeadlineExceeded", err)
	}
}

func TestPromiseOnSettleBeforeAndAfter(t *testing.T) {
	p := NewPromise[int]()
	var mu sync.Mutex
	var seen []int

	p.OnSettle(func(v int, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v)
	})
	p.Resolve(7)
	p.OnSettle(func(v int, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v)
	})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 7 || seen[1] != 7 {
		t.Errorf("callbacks observed %v, want [7 7]", seen)
	}
}

func TestPromiseCancelIsObservableAsError(t *testing.T) {
	p := NewPromise[int]()
	reason := errors.New("cancelled by caller")
	p.Cancel(reason)
	_, err := p.Await(context.Background())
	if err != reason {
		t.Errorf("Await err = %v, want %v", err, reason)
	}
}

func TestPromiseConcurrentSettleIsExactlyOnce(t *testing.T) {
	p := NewPromise[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.Resolve(n)
		}(i)
	}
	wg.Wait()
	if !p.Settled() {
		t.Fatal("Settled() = false after concurrent Resolve calls")
	}
	// Exactly one of the concurrent values should have won; Await must not
	// block or panic.
	if _, err := p.Await(context.Background()); err != nil {
		t.Errorf("Await: %v", err)
	}
}
