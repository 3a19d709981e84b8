// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"testing"
	"time"
)

func TestRequestLimiterDisabledWhenZero(t *testing.T) {
	l := newRequestLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	for i := 0; i < 1000; i++ {
		if err := l.wait(ctx); err != nil {
			t.Fatalf("wait() on disabled limiter: %v", err)
		}
	}
}

func TestRequestLimiterAllowsBurst(t *testing.T) {
	l := newRequestLimiter(5)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := l.wait(ctx); err != nil {
			t.Fatalf("wait() call %d: %v", i, err)
		}
	}
}

func TestRequestLimiterRespectsContextCancellation(t *testing.T) {
	l := newRequestLimiter(1)
	ctx := context.Background()
	// Drain the initial burst token.
	if err := l.wait(ctx); err != nil {
		t.Fatalf("wait() priming call: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.wait(cancelCtx); err != context.Canceled {
		t.Errorf("wait() on cancelled context = %v, want context.Canceled", err)
	}
}
