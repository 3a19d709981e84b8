// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// defaultRateLimit is the default token-bucket capacity for outgoing
// requests over the streamable HTTP transport, per spec §4.3.3.
const defaultRateLimit = 10 // requests per second

// requestLimiter throttles outgoing requests to a token-bucket rate,
// blocking in 1 second increments while the bucket is exceeded rather than
// returning an error, so that a burst of queued work drains rather than
// fails.
type requestLimiter struct {
	lim *rate.Limiter
}

// newRequestLimiter returns a limiter allowing perSecond requests per
// second, with a burst equal to perSecond. A perSecond of 0 disables rate
// limiting.
func newRequestLimiter(perSecond int) *requestLimiter {
	if perSecond <= 0 {
		return &requestLimiter{}
	}
	return &requestLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

// wait blocks until a token is available or ctx is done, sleeping in 1
// second increments so that a cancelled context is noticed promptly rather
// than only at the end of a long wait.
func (l *requestLimiter) wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return nil
	}
	for {
		if l.lim.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
