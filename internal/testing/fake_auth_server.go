// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package testing provides fake OAuth 2.1 servers used to exercise the
// auth package's provider without a real authorization server.
package testing

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenExpiry = time.Hour

var jwtSigningKey = []byte("fake-secret-key")

type authCodeInfo struct {
	codeChallenge string
	redirectURI   string
}

// FakeAuthServer is a fake OAuth 2.1 authorization server implementing
// metadata discovery (RFC 8414), dynamic client registration (RFC 7591),
// and the PKCE S256 authorization code flow.
type FakeAuthServer struct {
	Server *httptest.Server

	mu          sync.Mutex
	authCodes   map[string]authCodeInfo
	registered  map[string]bool
	nextClient  int
}

// NewFakeAuthServer starts a fake authorization server on an ephemeral
// localhost port.
func NewFakeAuthServer() *FakeAuthServer {
	s := &FakeAuthServer{
		authCodes:  make(map[string]authCodeInfo),
		registered: make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleMetadata)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/authorize", s.handleAuthorize)
	mux.HandleFunc("/token", s.handleToken)
	s.Server = httptest.NewServer(mux)
	return s
}

// Close shuts down the server.
func (s *FakeAuthServer) Close() { s.Server.Close() }

// Issuer returns the server's base URL, used as the issuer and resource
// server origin.
func (s *FakeAuthServer) Issuer() string { return s.Server.URL }

func (s *FakeAuthServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := s.Issuer()
	metadata := map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"registration_endpoint":                 issuer + "/register",
		"scopes_supported":                      []string{"openid", "profile", "email"},
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token", "client_credentials"},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_post"},
		"code_challenge_methods_supported":      []string{"S256"},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metadata)
}

func (s *FakeAuthServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var meta map[string]any
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, "invalid_client_metadata", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.nextClient++
	clientID := fmt.Sprintf("fake-client-%d", s.nextClient)
	s.registered[clientID] = true
	s.mu.Unlock()

	resp := map[string]any{
		"client_id":                clientID,
		"client_secret":            "fake-secret-" + clientID,
		"client_id_issued_at":      time.Now().Unix(),
		"token_endpoint_auth_method": "client_secret_post",
	}
	for k, v := range meta {
		if _, ok := resp[k]; !ok {
			resp[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (s *FakeAuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	responseType := query.Get("response_type")
	redirectURI := query.Get("redirect_uri")
	codeChallenge := query.Get("code_challenge")
	codeChallengeMethod := query.Get("code_challenge_method")

	if responseType != "code" {
		http.Error(w, "unsupported_response_type", http.StatusBadRequest)
		return
	}
	if redirectURI == "" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	if codeChallenge == "" || codeChallengeMethod != "S256" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	authCode := fmt.Sprintf("fake-auth-code-%d", time.Now().UnixNano())
	s.mu.Lock()
	s.authCodes[authCode] = authCodeInfo{
		codeChallenge: codeChallenge,
		redirectURI:   redirectURI,
	}
	s.mu.Unlock()

	redirectURL := fmt.Sprintf("%s?code=%s&state=%s", redirectURI, authCode, query.Get("state"))
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (s *FakeAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	grantType := r.Form.Get("grant_type")

	if grantType == "client_credentials" {
		s.issueToken(w, "fake-client-credentials-subject")
		return
	}

	if grantType != "authorization_code" {
		http.Error(w, "unsupported_grant_type", http.StatusBadRequest)
		return
	}

	code := r.Form.Get("code")
	redirectURI := r.Form.Get("redirect_uri")
	codeVerifier := r.Form.Get("code_verifier")

	s.mu.Lock()
	info, ok := s.authCodes[code]
	if ok {
		delete(s.authCodes, code)
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
		return
	}
	if info.redirectURI != redirectURI {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
		return
	}

	hasher := sha256.New()
	hasher.Write([]byte(codeVerifier))
	calculatedChallenge := base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
	if calculatedChallenge != info.codeChallenge {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
		return
	}

	s.issueToken(w, "fake-user-id")
}

func (s *FakeAuthServer) issueToken(w http.ResponseWriter, subject string) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.Issuer(),
		"sub": subject,
		"aud": "fake-client-id",
		"exp": now.Add(tokenExpiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(jwtSigningKey)
	if err != nil {
		http.Error(w, "server_error", http.StatusInternalServerError)
		return
	}

	tokenResponse := map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    int(tokenExpiry.Seconds()),
		"refresh_token": "fake-refresh-" + subject,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tokenResponse); err != nil {
		log.Printf("fake auth server: encode token response: %v", err)
	}
}
