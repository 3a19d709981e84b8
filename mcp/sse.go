// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

// SSETransportOptions configures the legacy two-endpoint SSE transport (spec
// §4.3.2, §6 "sse (legacy): {url, headers?, request_timeout?}").
type SSETransportOptions struct {
	// URL is the long-lived GET /sse endpoint.
	URL string
	// Headers are sent on both the GET stream and every POST.
	Headers    http.Header
	HTTPClient *http.Client
}

// sseReconnectDelay is the legacy transport's fixed reconnect backoff (spec
// §4.3.2: "Reconnects on disconnect with 1 s backoff" — unlike the
// streamable transport, this branch has no growth factor).
const sseReconnectDelay = time.Second

// SSETransport implements the legacy two-endpoint SSE transport: a
// long-lived GET stream delivers inbound envelopes, and the first event on
// that stream (named "endpoint") announces the URL that all outbound
// requests POST to. Responses are correlated by JSON-RPC id on the GET
// stream, not by any HTTP response to the POST itself.
type SSETransport struct {
	opts SSETransportOptions
}

// NewSSETransport returns a transport that opens opts.URL on Connect.
func NewSSETransport(opts SSETransportOptions) *SSETransport {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &SSETransport{opts: opts}
}

// Connect opens the GET stream and blocks until the server announces its
// POST endpoint, or ctx is done.
func (t *SSETransport) Connect(ctx context.Context) (Connection, error) {
	conn := &sseConn{
		opts:     t.opts,
		incoming: make(chan JSONRPCMessage, 64),
		done:     make(chan struct{}),
	}
	endpointCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go conn.run(endpointCh, errCh)

	select {
	case ep := <-endpointCh:
		conn.setPostURL(ep)
		return conn, nil
	case err := <-errCh:
		conn.Close()
		return nil, err
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

// sseConn is the Connection implementation for the legacy SSE transport.
type sseConn struct {
	opts     SSETransportOptions
	incoming chan JSONRPCMessage

	mu      sync.Mutex
	postURL string

	done      chan struct{}
	closeOnce sync.Once
}

func (c *sseConn) setPostURL(u string) {
	c.mu.Lock()
	c.postURL = u
	c.mu.Unlock()
}

func (c *sseConn) getPostURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.postURL
}

// run maintains the GET stream, reconnecting with sseReconnectDelay backoff
// on disconnect until Close is called. It reports the first connection's
// outcome via endpointCh/errCh so Connect can block on it; subsequent
// reconnects update postURL silently.
func (c *sseConn) run(endpointCh chan string, errCh chan error) {
	first := true
	announced := false
	for {
		select {
		case <-c.done:
			return
		default:
		}
		err := c.streamOnce(func(ep string) {
			c.setPostURL(ep)
			if !announced {
				announced = true
				endpointCh <- ep
			}
		})
		if first {
			first = false
			if err != nil && !announced {
				errCh <- err
				return
			}
		}
		if err != nil {
			log.Printf("mcp: legacy SSE stream disconnected, reconnecting: %v", err)
		}
		select {
		case <-c.done:
			return
		case <-time.After(sseReconnectDelay):
		}
	}
}

// streamOnce opens one GET connection and processes events from it until it
// ends (server close, network error, or Close). onEndpoint is invoked for
// the "endpoint" event.
func (c *sseConn) streamOnce(onEndpoint func(string)) error {
	req, err := http.NewRequest(http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return &TransportError{Message: "build SSE request", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, vs := range c.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Message: "connect to SSE stream", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{Message: fmt.Sprintf("SSE stream returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))}
	}

	haveEndpoint := onEndpointAlreadyKnown(c)
	for evt, err := range scanEvents(resp.Body) {
		select {
		case <-c.done:
			return nil
		default:
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &TransportError{Message: "read SSE stream", Err: err}
		}
		switch evt.name {
		case "endpoint":
			ep := resolveEndpoint(c.opts.URL, string(evt.data))
			haveEndpoint = true
			onEndpoint(ep)
		default:
			msg, decodeErr := readBatchSingle(evt.data)
			if decodeErr != nil {
				// Spec §4.3.3 buffering note, applied here too: stray
				// pre-endpoint parse failures are expected and silent.
				if !haveEndpoint {
					continue
				}
				log.Printf("mcp: dropping malformed SSE envelope: %v", decodeErr)
				continue
			}
			select {
			case c.incoming <- msg:
			case <-c.done:
				return nil
			}
		}
	}
	return nil
}

func onEndpointAlreadyKnown(c *sseConn) bool {
	return c.getPostURL() != ""
}

// resolveEndpoint resolves a (possibly relative) endpoint URL against the
// stream's own URL, per the legacy SSE transport's "endpoint" event.
func resolveEndpoint(streamURL, endpoint string) string {
	base, err := url.Parse(streamURL)
	if err != nil {
		return endpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return base.ResolveReference(ref).String()
}

func readBatchSingle(data []byte) (JSONRPCMessage, error) {
	msgs, _, err := readBatch(data)
	if err != nil {
		return nil, err
	}
	if len(msgs) != 1 {
		return nil, fmt.Errorf("mcp: expected one envelope, got %d", len(msgs))
	}
	return msgs[0], nil
}

// Read returns the next envelope delivered on the GET stream.
func (c *sseConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.done:
		return nil, &TransportError{Message: "connection closed"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write POSTs msg to the dynamic endpoint announced by the GET stream.
func (c *sseConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	postURL := c.getPostURL()
	if postURL == "" {
		return &TransportError{Message: "legacy SSE endpoint not yet announced"}
	}
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return &TransportError{Message: "encode outbound envelope", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Message: "build POST request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range c.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Message: "POST to legacy SSE endpoint", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &TransportError{Message: fmt.Sprintf("legacy SSE endpoint returned %d", resp.StatusCode)}
	}
	return nil
}

// Close stops the reconnect loop. Safe to call more than once.
func (c *sseConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
