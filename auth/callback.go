// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mcpcoord/go-mcp-client/internal/util"
)

const (
	defaultCallbackPort = 8080
	defaultCallbackPath = "/callback"

	// callbackShutdownGrace bounds how long the callback server stays up
	// after it has received its one successful callback.
	callbackShutdownGrace = 5 * time.Second

	// InteractiveFlowTimeout bounds the full browser-based authorization
	// flow, from StartAuthorizationFlow to the callback being received.
	InteractiveFlowTimeout = 300 * time.Second
)

// CallbackResult is the query-string payload delivered to the loopback
// callback server by the authorization server's redirect.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackServer is a local HTTP server bound to 127.0.0.1 that waits for
// exactly one OAuth redirect callback, per the browser-OAuth collaborator
// contract: it binds loopback-only, renders a plain HTML confirmation page
// on success (400 on invalid parameters), and shuts down within
// callbackShutdownGrace of completion.
type CallbackServer struct {
	Port int
	Path string

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	resultCh chan CallbackResult
	started  bool
}

// NewCallbackServer returns a CallbackServer listening on the given port and
// path. A zero port selects [defaultCallbackPort]; an empty path selects
// [defaultCallbackPath].
func NewCallbackServer(port int, path string) *CallbackServer {
	if port == 0 {
		port = defaultCallbackPort
	}
	if path == "" {
		path = defaultCallbackPath
	}
	return &CallbackServer{
		Port:     port,
		Path:     path,
		resultCh: make(chan CallbackResult, 1),
	}
}

// Start binds the callback server to 127.0.0.1:Port and begins serving in
// the background.
func (s *CallbackServer) Start() (err error) {
	defer util.Wrapf(&err, "CallbackServer.Start")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("callback server already started")
	}
	addr := fmt.Sprintf("127.0.0.1:%d", s.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if !util.IsLoopback(ln.Addr().String()) {
		ln.Close()
		return fmt.Errorf("callback server refused to bind non-loopback address %q", ln.Addr())
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.Path, s.handleCallback)
	s.server = &http.Server{Handler: mux}
	s.listener = ln
	s.started = true

	go s.server.Serve(ln)
	return nil
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result := CallbackResult{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	if result.Error == "" && result.Code == "" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "<html><body><h1>Invalid callback request</h1></body></html>")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if result.Error != "" {
		fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>%s</p></body></html>", result.ErrorDescription)
	} else {
		fmt.Fprint(w, "<html><body><h1>Authorization complete</h1><p>You may close this window.</p></body></html>")
	}

	select {
	case s.resultCh <- result:
	default:
	}

	go func() {
		time.Sleep(callbackShutdownGrace)
		s.Close()
	}()
}

// Wait blocks until a callback is received, the context is cancelled, or
// [InteractiveFlowTimeout] elapses, whichever comes first.
func (s *CallbackServer) Wait(ctx context.Context) (CallbackResult, error) {
	ctx, cancel := context.WithTimeout(ctx, InteractiveFlowTimeout)
	defer cancel()
	select {
	case r := <-s.resultCh:
		return r, nil
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}

// RedirectURI returns the loopback redirect URI this server will accept
// callbacks on.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.Port, s.Path)
}

// Close shuts down the callback server. It is safe to call multiple times.
func (s *CallbackServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), callbackShutdownGrace)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.started = false
	return err
}
