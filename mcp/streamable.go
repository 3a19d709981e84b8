// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpcoord/go-mcp-client/auth"
	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

// defaultStreamableRateLimit is the default outgoing request rate for the
// streamable transport's token bucket (spec §4.3.3 "Rate limiting").
const defaultStreamableRateLimit = 10 // requests per second

// OAuthConfig gates a StreamableTransport's requests behind an OAuth 2.1
// bearer token, acquired and refreshed through Provider (spec §4.4).
type OAuthConfig struct {
	// Provider supplies and refreshes the access token.
	Provider *auth.Provider
	// ServerURL is the key under which Provider stores tokens, client
	// registrations, and metadata for this connection's endpoint.
	ServerURL string
	// OpenURL launches the interactive authorization-code flow (typically
	// the browser-OAuth helper, out of core scope — spec §6). If nil, a 401
	// cannot be recovered from interactively and surfaces as
	// AuthenticationRequiredError.
	OpenURL func(ctx context.Context, authorizationURL string) error
}

// ReconnectionOptions configures the streamable transport's SSE reconnect
// backoff (spec §4.3.3 "SSE reconnection").
type ReconnectionOptions struct {
	// InitialDelay is the first reconnect delay. Defaults to 1s.
	InitialDelay time.Duration
	// MaxDelay caps the backoff. Defaults to 30s.
	MaxDelay time.Duration
	// GrowthFactor multiplies the delay after each failed attempt. Defaults
	// to 1.5.
	GrowthFactor float64
	// MaxRetries bounds the number of consecutive failed reconnect attempts;
	// after that the transport stops reopening the GET stream and reports no
	// error. Defaults to 2.
	MaxRetries int
}

func (r ReconnectionOptions) withDefaults() ReconnectionOptions {
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 30 * time.Second
	}
	if r.GrowthFactor <= 0 {
		r.GrowthFactor = 1.5
	}
	if r.MaxRetries <= 0 {
		r.MaxRetries = 2
	}
	return r
}

// StreamableTransportOptions configures a StreamableTransport (spec §4.3.3,
// §6 "streamable: {url, headers?, request_timeout?, sse_timeout?, version?,
// oauth?, rate_limit?, reconnection?, session_id?}").
type StreamableTransportOptions struct {
	// Headers are added to every outbound request, before OAuth's
	// Authorization header (which takes precedence on key collision).
	Headers http.Header

	// HTTPClient is used for every request. http.DefaultClient is used if
	// nil. Client instances are tracked for shutdown hygiene (spec §4.3.3
	// "Client-pool hygiene") regardless of which caller supplied them.
	HTTPClient *http.Client

	// OAuth, if non-nil, gates every request behind a bearer token and
	// handles a 401 challenge with a single retry.
	OAuth *OAuthConfig

	// RateLimitPerSecond bounds outgoing request throughput. Zero uses
	// defaultStreamableRateLimit; a negative value disables rate limiting.
	RateLimitPerSecond int

	Reconnection ReconnectionOptions

	// DisableEventStream, if true, skips opening the long-lived GET stream
	// for server-initiated messages; the connection then only receives
	// replies inline or via a per-POST SSE upgrade (spec §4.3.3 "GET
	// (optional)").
	DisableEventStream bool

	// SessionID, if set, resumes an existing streamable-HTTP session
	// instead of letting the server mint one on the first POST.
	SessionID string

	// ClientID is sent as X-CLIENT-ID on every request. A random id is
	// generated if empty (spec §6 "stable per client instance").
	ClientID string

	// MaxBodyBytes bounds how much of a single response body this transport
	// will read: the inline POST reply, or the whole of one SSE stream. Zero
	// uses DefaultMaxBodyBytes; a negative value disables the limit.
	MaxBodyBytes int64
}

// StreamableTransport is a [Transport] that speaks the single-endpoint
// streamable HTTP transport (spec §4.3.3): POSTed requests answered inline
// or via a chunked SSE upgrade, an optional long-lived GET stream for
// server-initiated messages with Last-Event-ID resumption, OAuth-gated
// retries on 401, and session-expiry recovery on 404.
type StreamableTransport struct {
	url  string
	opts StreamableTransportOptions
}

// NewStreamableTransport returns a transport that connects to the
// streamable HTTP endpoint at url.
func NewStreamableTransport(url string, opts *StreamableTransportOptions) *StreamableTransport {
	t := &StreamableTransport{url: url}
	if opts != nil {
		t.opts = *opts
	}
	t.opts.Reconnection = t.opts.Reconnection.withDefaults()
	if t.opts.HTTPClient == nil {
		t.opts.HTTPClient = http.DefaultClient
	}
	if t.opts.ClientID == "" {
		t.opts.ClientID = newID()
	}
	registerHTTPClient(t.opts.HTTPClient)
	return t
}

// Connect opens a logical session against the configured endpoint. The
// session id, if any, is established lazily on the first POST response
// unless StreamableTransportOptions.SessionID was set.
func (t *StreamableTransport) Connect(ctx context.Context) (Connection, error) {
	conn := &streamableConn{
		url:      t.url,
		opts:     t.opts,
		limiter:  newRequestLimiter(streamableRateLimit(t.opts.RateLimitPerSecond)),
		maxBody:  effectiveMaxBodyBytes(t.opts.MaxBodyBytes),
		incoming: make(chan JSONRPCMessage, 64),
		done:     make(chan struct{}),
	}
	conn.sessionID.Store(t.opts.SessionID)
	if !t.opts.DisableEventStream {
		conn.streamWG.Add(1)
		go conn.runEventStream()
	}
	return conn, nil
}

func streamableRateLimit(configured int) int {
	if configured < 0 {
		return 0
	}
	if configured == 0 {
		return defaultStreamableRateLimit
	}
	return configured
}

// streamableConn is the Connection implementation behind StreamableTransport.
type streamableConn struct {
	url  string
	opts StreamableTransportOptions

	limiter *requestLimiter

	// maxBody bounds a single response body read; 0 means unlimited (see
	// effectiveMaxBodyBytes).
	maxBody int64

	sessionID atomic.Value // string

	mu              sync.Mutex
	protocolVersion string
	lastEventID     string

	incoming chan JSONRPCMessage
	done     chan struct{}
	closeOnce sync.Once
	streamWG  sync.WaitGroup
}

// SetProtocolVersion implements the protocolVersionSetter interface the
// coordinator uses to echo the negotiated MCP protocol version on every
// subsequent request (spec §4.3.3 "mcp-protocol-version").
func (c *streamableConn) SetProtocolVersion(v string) {
	c.mu.Lock()
	c.protocolVersion = v
	c.mu.Unlock()
}

func (c *streamableConn) getProtocolVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

func (c *streamableConn) getSessionID() string {
	if v, ok := c.sessionID.Load().(string); ok {
		return v
	}
	return ""
}

func (c *streamableConn) setSessionID(id string) {
	if id != "" {
		c.sessionID.Store(id)
	}
}

// clearSessionID drops the session id so the next outgoing request carries
// none. Nothing in this package re-runs the initialize handshake afterwards.
func (c *streamableConn) clearSessionID() {
	c.sessionID.Store("")
}

func (c *streamableConn) getLastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

func (c *streamableConn) setLastEventID(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.lastEventID = id
	c.mu.Unlock()
}

// applyHeaders sets the headers common to every request made on this
// connection (spec §6 request headers list).
func (c *streamableConn) applyHeaders(req *http.Request) {
	for k, vs := range c.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if sid := c.getSessionID(); sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}
	if pv := c.getProtocolVersion(); pv != "" {
		req.Header.Set("Mcp-Protocol-Version", pv)
	}
	req.Header.Set("X-Client-Id", c.opts.ClientID)
}

// authorize attaches an OAuth bearer token to req, if configured and a
// token is available.
func (c *streamableConn) authorize(ctx context.Context, req *http.Request) error {
	if c.opts.OAuth == nil {
		return nil
	}
	tok, err := c.opts.OAuth.Provider.AccessToken(ctx, c.opts.OAuth.ServerURL)
	if err != nil {
		return err
	}
	if tok != nil {
		tok.SetAuthHeader(req)
	}
	return nil
}

// limitBody caps r to the connection's configured body limit, if any, for
// use with readers that should tolerate an unbounded stream (the SSE event
// sources); a discrete single-value body should use readBody instead so the
// limit violation surfaces as an error rather than a silent truncation.
func (c *streamableConn) limitBody(r io.Reader) io.Reader {
	if c.maxBody <= 0 {
		return r
	}
	return io.LimitReader(r, c.maxBody)
}

// readBody reads r fully, failing with an error if it exceeds the
// connection's configured body limit rather than silently truncating.
func (c *streamableConn) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("response body exceeds %d byte limit", c.maxBody)
	}
	return body, nil
}

// pushIncoming delivers msg to Read, silently dropping it if the connection
// has already closed rather than blocking forever.
func (c *streamableConn) pushIncoming(msg JSONRPCMessage) {
	select {
	case c.incoming <- msg:
	case <-c.done:
	}
}

// Read returns the next envelope delivered inline from a POST response, a
// per-POST SSE upgrade, or the long-lived GET stream.
func (c *streamableConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.done:
		return nil, &TransportError{Message: "connection closed"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write POSTs msg to the endpoint, honoring rate limiting, OAuth, and
// session/version headers, and delivers any resulting reply via the
// incoming channel read by Read (spec §4.3.3 POST semantics).
func (c *streamableConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	if err := c.limiter.wait(ctx); err != nil {
		return err
	}
	return c.post(ctx, msg, false)
}

func (c *streamableConn) post(ctx context.Context, msg JSONRPCMessage, isRetry bool) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return &TransportError{Message: "encode outbound envelope", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Message: "build POST request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	c.applyHeaders(req)
	if err := c.authorize(ctx, req); err != nil {
		return &TransportError{Message: "acquire OAuth token", Err: err}
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Message: "POST request failed", Err: err}
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		c.setSessionID(sid)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		ct := resp.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "text/event-stream") {
			return c.consumeSSE(resp.Body)
		}
		body, err := c.readBody(resp.Body)
		if err != nil {
			return &TransportError{Message: "read POST response body", Err: err}
		}
		reply, err := jsonrpc2.DecodeMessage(body)
		if err != nil {
			return &TransportError{Message: "malformed POST response", Err: err}
		}
		c.pushIncoming(reply)
		return nil

	case http.StatusAccepted:
		io.Copy(io.Discard, resp.Body)
		return nil

	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		sid := c.getSessionID()
		c.clearSessionID()
		return &SessionExpiredError{SessionID: sid}

	case http.StatusUnauthorized:
		www := resp.Header.Values("Www-Authenticate")
		io.Copy(io.Discard, resp.Body)
		return c.handleUnauthorized(ctx, msg, www, isRetry)

	case http.StatusMethodNotAllowed, http.StatusConflict:
		// Benign: the endpoint doesn't support this verb, or an SSE stream
		// already exists for this session (spec §4.3.3).
		io.Copy(io.Discard, resp.Body)
		return nil

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{Message: fmt.Sprintf("POST returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))}
	}
}

// handleUnauthorized responds to a POST 401 by running the OAuth provider's
// challenge flow and retrying the original request exactly once, guarded by
// the provider's single-shot retry flag (spec §4.4, §8 scenario 4).
func (c *streamableConn) handleUnauthorized(ctx context.Context, msg JSONRPCMessage, wwwAuthenticate []string, isRetry bool) error {
	if c.opts.OAuth == nil {
		return &AuthenticationRequiredError{ServerURL: c.url}
	}
	serverURL := c.opts.OAuth.ServerURL
	if isRetry || !c.opts.OAuth.Provider.ShouldRetryOnce(serverURL) {
		return &AuthenticationRequiredError{ServerURL: serverURL}
	}
	ok, err := c.opts.OAuth.Provider.HandleAuthenticationChallenge(ctx, serverURL, wwwAuthenticate, c.opts.OAuth.OpenURL)
	if err != nil || !ok {
		return &AuthenticationRequiredError{ServerURL: serverURL, Cause: err}
	}
	defer c.opts.OAuth.Provider.ClearRetryGuard(serverURL)
	return c.post(ctx, msg, true)
}

// consumeSSE reads a chunked SSE response to a POST to completion,
// delivering each event's JSON body to the incoming channel, until an
// "event: stop" event or the server closes the stream (spec §4.3.3).
func (c *streamableConn) consumeSSE(body io.Reader) error {
	for evt, err := range scanEvents(c.limitBody(body)) {
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &TransportError{Message: "read SSE response stream", Err: err}
		}
		if evt.id != "" {
			c.setLastEventID(evt.id)
		}
		if evt.name == "stop" {
			return nil
		}
		msg, decodeErr := jsonrpc2.DecodeMessage(evt.data)
		if decodeErr != nil {
			continue
		}
		c.pushIncoming(msg)
	}
	return nil
}

// runEventStream maintains the optional long-lived GET stream for
// server-initiated messages, reconnecting with exponential backoff and
// Last-Event-ID resumption on disconnect (spec §4.3.3 "SSE reconnection").
func (c *streamableConn) runEventStream() {
	defer c.streamWG.Done()
	recon := c.opts.Reconnection
	delay := recon.InitialDelay
	attempt := 0

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if c.getSessionID() == "" {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		err := c.streamOnce()
		select {
		case <-c.done:
			return
		default:
		}
		if err == nil {
			attempt = 0
			delay = recon.InitialDelay
			continue
		}
		if _, ok := err.(*SessionExpiredError); ok {
			// Wait until a later POST response supplies a new session id
			// before resuming the stream.
			attempt = 0
			delay = recon.InitialDelay
			continue
		}
		attempt++
		if attempt > recon.MaxRetries {
			return
		}
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * recon.GrowthFactor)
		if delay > recon.MaxDelay {
			delay = recon.MaxDelay
		}
	}
}

// streamOnce opens a single GET connection and processes events from it
// until it ends (server close, network error, or Close).
func (c *streamableConn) streamOnce() error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, c.url, nil)
	if err != nil {
		return &TransportError{Message: "build GET request", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	c.applyHeaders(req)
	if lastID := c.getLastEventID(); lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	if err := c.authorize(req.Context(), req); err != nil {
		return &TransportError{Message: "acquire OAuth token", Err: err}
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Message: "GET request failed", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to stream consumption below.
	case http.StatusMethodNotAllowed:
		// The server doesn't support the GET upgrade; nothing more to do.
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET upgrade not supported")
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		sid := c.getSessionID()
		c.clearSessionID()
		return &SessionExpiredError{SessionID: sid}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{Message: fmt.Sprintf("GET returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))}
	}

	for evt, err := range scanEvents(c.limitBody(resp.Body)) {
		select {
		case <-c.done:
			return nil
		default:
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &TransportError{Message: "read GET stream", Err: err}
		}
		if evt.id != "" {
			c.setLastEventID(evt.id)
		}
		if evt.name == "stop" {
			return nil
		}
		msg, decodeErr := jsonrpc2.DecodeMessage(evt.data)
		if decodeErr != nil {
			continue
		}
		c.pushIncoming(msg)
	}
	return nil
}

// Close terminates the logical session: it stops the GET stream, issues a
// best-effort DELETE to the server, and joins the stream goroutine with a
// bounded grace period (spec §4.3.3 "Client-pool hygiene").
func (c *streamableConn) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		close(c.done)

		joined := make(chan struct{})
		go func() {
			c.streamWG.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(5 * time.Second):
		}

		if sid := c.getSessionID(); sid != "" {
			req, err := http.NewRequest(http.MethodDelete, c.url, nil)
			if err == nil {
				c.applyHeaders(req)
				resp, doErr := c.opts.HTTPClient.Do(req)
				if doErr != nil {
					closeErr = &TransportError{Message: "DELETE session", Err: doErr}
				} else {
					io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
					// 200/204/404/405 are all acceptable outcomes for
					// session termination (spec §4.3.3 DELETE).
				}
			}
		}
	})
	return closeErr
}

// httpClientRegistry tracks every *http.Client used by a StreamableTransport
// (the caller's HTTPClient or http.DefaultClient) so idle connections can be
// released en masse (spec
// §4.3.3 "All HTTP client instances are registered in a thread-safe set").
var httpClientRegistry = struct {
	mu      sync.Mutex
	clients map[*http.Client]struct{}
}{clients: make(map[*http.Client]struct{})}

func registerHTTPClient(c *http.Client) {
	httpClientRegistry.mu.Lock()
	httpClientRegistry.clients[c] = struct{}{}
	httpClientRegistry.mu.Unlock()
}

// CloseIdleHTTPClients releases idle connections held by every HTTP client
// instance used by a StreamableTransport in this process.
func CloseIdleHTTPClients() {
	httpClientRegistry.mu.Lock()
	defer httpClientRegistry.mu.Unlock()
	for c := range httpClientRegistry.clients {
		c.CloseIdleConnections()
	}
}
