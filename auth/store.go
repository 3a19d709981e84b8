// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/mcpcoord/go-mcp-client/oauthex"
)

// stateAndPKCETTL bounds how long a pending authorization flow's state and
// PKCE verifier survive unclaimed, per the storage interface contract.
const stateAndPKCETTL = 10 * time.Minute

// ClientInfo records the resolved client registration for a server, however
// it was obtained (dynamic registration, preregistration, or a client ID
// metadata document).
type ClientInfo struct {
	ClientID                string
	ClientSecret            string
	TokenEndpointAuthMethod string
	AuthStyle               oauth2.AuthStyle
	ClientSecretExpiresAt   int64 // unix seconds, 0 if it never expires
}

// PKCE holds the per-flow PKCE verifier generated by StartAuthorizationFlow,
// persisted until CompleteAuthorizationFlow consumes it.
type PKCE struct {
	CodeVerifier string
}

// Storage persists the state an OAuth Provider needs across calls: tokens,
// resolved client registrations, discovered server metadata, and in-flight
// PKCE verifiers and state values. All methods must be safe for concurrent
// use. Keys passed to every method are raw server URLs; implementations are
// expected to normalize them (see normalizeServerURL) before indexing.
type Storage interface {
	GetToken(ctx context.Context, serverURL string) (*oauth2.Token, error)
	SetToken(ctx context.Context, serverURL string, token *oauth2.Token) error

	GetClientInfo(ctx context.Context, serverURL string) (*ClientInfo, error)
	SetClientInfo(ctx context.Context, serverURL string, ci *ClientInfo) error

	GetServerMetadata(ctx context.Context, serverURL string) (*oauthex.AuthServerMeta, error)
	SetServerMetadata(ctx context.Context, serverURL string, md *oauthex.AuthServerMeta) error

	GetPKCE(ctx context.Context, serverURL string) (*PKCE, error)
	SetPKCE(ctx context.Context, serverURL string, p *PKCE) error
	DeletePKCE(ctx context.Context, serverURL string) error

	GetState(ctx context.Context, serverURL string) (string, error)
	SetState(ctx context.Context, serverURL string, state string) error
	DeleteState(ctx context.Context, serverURL string) error
}

type ttlEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryStorage is the default in-memory [Storage] backend. A single mutex
// guards all fields, matching the storage interface's "default in-memory
// backend guards a single mutex across all fields" contract.
type MemoryStorage struct {
	mu       sync.Mutex
	tokens   map[string]*oauth2.Token
	clients  map[string]*ClientInfo
	metadata map[string]*oauthex.AuthServerMeta
	pkce     map[string]ttlEntry[*PKCE]
	state    map[string]ttlEntry[string]
}

// NewMemoryStorage returns an empty in-memory [Storage].
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tokens:   make(map[string]*oauth2.Token),
		clients:  make(map[string]*ClientInfo),
		metadata: make(map[string]*oauthex.AuthServerMeta),
		pkce:     make(map[string]ttlEntry[*PKCE]),
		state:    make(map[string]ttlEntry[string]),
	}
}

func (s *MemoryStorage) GetToken(_ context.Context, serverURL string) (*oauth2.Token, error) {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[key], nil
}

func (s *MemoryStorage) SetToken(_ context.Context, serverURL string, token *oauth2.Token) error {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = token
	return nil
}

func (s *MemoryStorage) GetClientInfo(_ context.Context, serverURL string) (*ClientInfo, error) {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[key], nil
}

func (s *MemoryStorage) SetClientInfo(_ context.Context, serverURL string, ci *ClientInfo) error {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[key] = ci
	return nil
}

func (s *MemoryStorage) GetServerMetadata(_ context.Context, serverURL string) (*oauthex.AuthServerMeta, error) {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata[key], nil
}

func (s *MemoryStorage) SetServerMetadata(_ context.Context, serverURL string, md *oauthex.AuthServerMeta) error {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = md
	return nil
}

func (s *MemoryStorage) GetPKCE(_ context.Context, serverURL string) (*PKCE, error) {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pkce[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.pkce, key)
		return nil, nil
	}
	return e.value, nil
}

func (s *MemoryStorage) SetPKCE(_ context.Context, serverURL string, p *PKCE) error {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkce[key] = ttlEntry[*PKCE]{value: p, expiresAt: time.Now().Add(stateAndPKCETTL)}
	return nil
}

func (s *MemoryStorage) DeletePKCE(_ context.Context, serverURL string) error {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pkce, key)
	return nil
}

func (s *MemoryStorage) GetState(_ context.Context, serverURL string) (string, error) {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state[key]
	if !ok {
		return "", nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.state, key)
		return "", nil
	}
	return e.value, nil
}

func (s *MemoryStorage) SetState(_ context.Context, serverURL string, state string) error {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = ttlEntry[string]{value: state, expiresAt: time.Now().Add(stateAndPKCETTL)}
	return nil
}

func (s *MemoryStorage) DeleteState(_ context.Context, serverURL string) error {
	key, err := normalizeServerURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, key)
	return nil
}
