// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package auth implements the OAuth 2.1 authorization-code flow MCP clients
// use to obtain access tokens for protected resource servers: PKCE S256,
// dynamic client registration (RFC 7591), authorization-server discovery
// (RFC 8414), protected-resource metadata (RFC 9728), and resource
// indicators (RFC 8707).
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mcpcoord/go-mcp-client/internal/util"
	"github.com/mcpcoord/go-mcp-client/oauthex"
)

// ErrUnauthorized is returned when a request fails due to missing or
// rejected authorization.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidState is returned by CompleteAuthorizationFlow when the
// returned state does not match the one persisted by StartAuthorizationFlow.
var ErrInvalidState = errors.New("invalid_state")

const serverMetadataTTL = 24 * time.Hour

// ClientRegistration configures how the Provider resolves client
// credentials for a server. The three fields are tried in order
// (ClientIDMetadataDocumentURL, then Preregistered, then Dynamic); set only
// the one matching the resolution strategy the server supports.
type ClientRegistration struct {
	// ClientIDMetadataDocumentURL, if non-empty, is used directly as the
	// OAuth client_id per draft-ietf-oauth-client-id-metadata-document: no
	// registration round trip is made, since the authorization server is
	// expected to fetch and validate the metadata document at this URL
	// itself on first use.
	ClientIDMetadataDocumentURL string

	// Preregistered, if non-nil, is used as-is: no discovery or dynamic
	// registration is attempted.
	Preregistered *ClientInfo

	// Dynamic, if non-nil, is the metadata submitted to the server's
	// registration_endpoint when no cached, unexpired registration exists.
	Dynamic *oauthex.ClientRegistrationMetadata
}

// Provider drives the OAuth 2.1 PKCE authorization-code flow for a set of
// MCP servers. A Provider is stateless over its Storage and safe for
// concurrent use; all durable state (tokens, client registrations,
// discovered server metadata, in-flight PKCE/state) lives in Storage.
type Provider struct {
	Storage     Storage
	RedirectURL string
	Scopes      []string
	Registration ClientRegistration

	// HTTPClient is used for discovery, registration, and token requests.
	// http.DefaultClient is used if nil.
	HTTPClient *http.Client

	// refreshMu serializes token refresh per normalized server URL so that
	// concurrent AccessToken calls produce at most one token-endpoint
	// request (spec'd token renewal idempotence property).
	refreshMu sync.Map // map[string]*sync.Mutex

	// retryAttempted tracks the single-shot 401-retry guard per server URL.
	retryMu        sync.Mutex
	retryAttempted map[string]bool

	// metaFetchedAt tracks when server metadata was last discovered, so it
	// can be treated as stale after serverMetadataTTL even though Storage
	// itself has no expiry notion for this field.
	metaMu        sync.Mutex
	metaFetchedAt map[string]time.Time
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *Provider) refreshLock(serverURL string) *sync.Mutex {
	if key, err := normalizeServerURL(serverURL); err == nil {
		serverURL = key
	}
	v, _ := p.refreshMu.LoadOrStore(serverURL, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// StartAuthorizationFlow begins the authorization-code flow for serverURL
// and returns the URL the caller should direct the user's browser to.
func (p *Provider) StartAuthorizationFlow(ctx context.Context, serverURL string) (_ string, err error) {
	defer util.Wrapf(&err, "StartAuthorizationFlow(%q)", serverURL)
	return p.startAuthorizationFlow(ctx, serverURL, p.Scopes)
}

// startAuthorizationFlow is StartAuthorizationFlow parameterized on the
// scopes to request, so a single 401 challenge's server-advertised scopes
// (HandleAuthenticationChallenge) can override the Provider's default scopes
// for one flow without mutating the shared Provider.
func (p *Provider) startAuthorizationFlow(ctx context.Context, serverURL string, scopes []string) (string, error) {
	meta, err := p.authServerMetadata(ctx, serverURL)
	if err != nil {
		return "", err
	}
	client, err := p.clientRegistration(ctx, serverURL, meta)
	if err != nil {
		return "", err
	}

	verifier, err := randomURLSafe(32)
	if err != nil {
		return "", err
	}
	state, err := randomURLSafe(32)
	if err != nil {
		return "", err
	}
	challenge := pkceS256Challenge(verifier)

	if err := p.Storage.SetPKCE(ctx, serverURL, &PKCE{CodeVerifier: verifier}); err != nil {
		return "", err
	}
	if err := p.Storage.SetState(ctx, serverURL, state); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", client.ClientID)
	q.Set("redirect_uri", p.RedirectURL)
	if len(scopes) > 0 {
		q.Set("scope", joinScopes(scopes))
	}
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("resource", serverURL)

	authURL, err := url.Parse(meta.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}
	authURL.RawQuery = q.Encode()
	return authURL.String(), nil
}

// CompleteAuthorizationFlow exchanges an authorization code (and its
// accompanying returned state) for a token, validating the state in
// constant time against the one persisted by StartAuthorizationFlow.
func (p *Provider) CompleteAuthorizationFlow(ctx context.Context, serverURL, code, returnedState string) (_ *oauth2.Token, err error) {
	defer util.Wrapf(&err, "CompleteAuthorizationFlow(%q)", serverURL)

	wantState, err := p.Storage.GetState(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	if wantState == "" || !constantTimeEqual(wantState, returnedState) {
		return nil, ErrInvalidState
	}
	pkce, err := p.Storage.GetPKCE(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	if pkce == nil {
		return nil, fmt.Errorf("no pending PKCE verifier for %q", serverURL)
	}
	meta, err := p.Storage.GetServerMetadata(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("no cached server metadata for %q", serverURL)
	}
	client, err := p.Storage.GetClientInfo(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("no registered client for %q", serverURL)
	}

	cfg := p.oauth2Config(meta, client)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient())
	token, err := cfg.Exchange(ctx, code,
		oauth2.VerifierOption(pkce.CodeVerifier),
		oauth2.SetAuthURLParam("resource", serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	if err := p.Storage.SetToken(ctx, serverURL, token); err != nil {
		return nil, err
	}
	_ = p.Storage.DeletePKCE(ctx, serverURL)
	_ = p.Storage.DeleteState(ctx, serverURL)
	return token, nil
}

// AccessToken returns the stored token for serverURL, proactively
// refreshing it if it is expired or expiring soon. Refresh is serialized
// per server URL. A refresh failure deletes the stored token and returns
// (nil, nil).
func (p *Provider) AccessToken(ctx context.Context, serverURL string) (_ *oauth2.Token, err error) {
	defer util.Wrapf(&err, "AccessToken(%q)", serverURL)

	lock := p.refreshLock(serverURL)
	lock.Lock()
	defer lock.Unlock()

	token, err := p.Storage.GetToken(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, nil
	}
	if token.Valid() {
		return token, nil
	}
	if token.RefreshToken == "" {
		_ = p.Storage.SetToken(ctx, serverURL, nil)
		return nil, nil
	}

	meta, err := p.Storage.GetServerMetadata(ctx, serverURL)
	if err != nil || meta == nil {
		_ = p.Storage.SetToken(ctx, serverURL, nil)
		return nil, nil
	}
	client, err := p.Storage.GetClientInfo(ctx, serverURL)
	if err != nil || client == nil {
		_ = p.Storage.SetToken(ctx, serverURL, nil)
		return nil, nil
	}

	cfg := p.oauth2Config(meta, client)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient())
	refreshed, err := cfg.TokenSource(ctx, token).Token()
	if err != nil {
		_ = p.Storage.SetToken(ctx, serverURL, nil)
		return nil, nil
	}
	if err := p.Storage.SetToken(ctx, serverURL, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// ClientCredentials obtains a token for serverURL via the client_credentials
// grant (spec §6 "Token endpoint grants... or client_credentials"), for
// service-to-service callers that have no end user to redirect through the
// interactive authorization-code flow. Client registration is resolved the
// same way StartAuthorizationFlow resolves it.
func (p *Provider) ClientCredentials(ctx context.Context, serverURL string) (_ *oauth2.Token, err error) {
	defer util.Wrapf(&err, "ClientCredentials(%q)", serverURL)

	meta, err := p.authServerMetadata(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	client, err := p.clientRegistration(ctx, serverURL, meta)
	if err != nil {
		return nil, err
	}

	cfg := clientcredentials.Config{
		ClientID:       client.ClientID,
		ClientSecret:   client.ClientSecret,
		TokenURL:       meta.TokenEndpoint,
		Scopes:         p.Scopes,
		AuthStyle:      client.AuthStyle,
		EndpointParams: url.Values{"resource": {serverURL}},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient())
	token, err := cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client credentials exchange failed: %w", err)
	}
	if err := p.Storage.SetToken(ctx, serverURL, token); err != nil {
		return nil, err
	}
	return token, nil
}

// HandleAuthenticationChallenge responds to an HTTP 401 from serverURL by
// parsing its WWW-Authenticate header, re-discovering metadata if a
// resource_metadata URL is present (RFC 9728), and running the interactive
// flow via openURL. It returns whether authorization succeeded.
//
// The caller must guard retries with its own single-shot flag: this method
// performs one full flow attempt and does not loop.
func (p *Provider) HandleAuthenticationChallenge(ctx context.Context, serverURL string, wwwAuthenticate []string, openURL func(ctx context.Context, url string) error) (bool, error) {
	challenges, err := oauthex.ParseWWWAuthenticate(wwwAuthenticate)
	if err != nil {
		return false, err
	}

	if metadataURL := oauthex.ResourceMetadataURL(challenges); metadataURL != "" {
		prm, err := oauthex.GetProtectedResourceMetadata(ctx, oauthex.ProtectedResourceMetadataURL{
			URL:      metadataURL,
			Resource: serverURL,
		}, p.httpClient())
		if err == nil && len(prm.AuthorizationServers) > 0 {
			serverURL = prm.AuthorizationServers[0]
		}
	}
	scopes := p.Scopes
	if challengeScopes := oauthex.Scopes(challenges); len(challengeScopes) > 0 {
		scopes = challengeScopes
	}

	authURL, err := p.startAuthorizationFlow(ctx, serverURL, scopes)
	if err != nil {
		return false, err
	}
	if openURL == nil {
		return false, fmt.Errorf("no interactive flow handler configured")
	}
	if err := openURL(ctx, authURL); err != nil {
		return false, fmt.Errorf("authorization URL handler failed: %w", err)
	}
	return true, nil
}

// ShouldRetryOnce implements the single-shot auth_retry_attempted guard a
// transport consults before retrying a request after a 401: it returns true
// exactly once per server URL, then false for any further call until
// ClearRetryGuard resets it (spec §4.4 "single-shot flag... to prevent
// infinite 401 loops").
func (p *Provider) ShouldRetryOnce(serverURL string) bool {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	if p.retryAttempted == nil {
		p.retryAttempted = make(map[string]bool)
	}
	if p.retryAttempted[serverURL] {
		return false
	}
	p.retryAttempted[serverURL] = true
	return true
}

// ClearRetryGuard resets the single-shot retry guard for serverURL, so a
// later, independent 401 can trigger another single retry attempt.
func (p *Provider) ClearRetryGuard(serverURL string) {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	delete(p.retryAttempted, serverURL)
}

func (p *Provider) authServerMetadata(ctx context.Context, serverURL string) (*oauthex.AuthServerMeta, error) {
	cached, err := p.Storage.GetServerMetadata(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	if cached != nil && !p.metadataStale(serverURL) {
		return cached, nil
	}

	meta, err := oauthex.GetAuthServerMeta(ctx, serverURL, p.httpClient())
	if err != nil {
		return nil, err
	}
	if meta == nil {
		// Fallback per the 2025-03-26 spec: predefined endpoints relative
		// to the server's own origin.
		u, err := url.Parse(serverURL)
		if err != nil {
			return nil, err
		}
		u.Path = ""
		origin := u.String()
		meta = &oauthex.AuthServerMeta{
			Issuer:                origin,
			AuthorizationEndpoint: origin + "/authorize",
			TokenEndpoint:         origin + "/token",
			RegistrationEndpoint:  origin + "/register",
		}
	}
	if err := p.Storage.SetServerMetadata(ctx, serverURL, meta); err != nil {
		return nil, err
	}
	p.markMetadataFetched(serverURL)
	return meta, nil
}

func (p *Provider) metadataStale(serverURL string) bool {
	p.metaMu.Lock()
	defer p.metaMu.Unlock()
	fetchedAt, ok := p.metaFetchedAt[serverURL]
	if !ok {
		// Metadata predates this Provider instance (e.g. loaded from a
		// persistent Storage); treat it as fresh rather than forcing a
		// redundant discovery round trip on first use.
		return false
	}
	return time.Since(fetchedAt) > serverMetadataTTL
}

func (p *Provider) markMetadataFetched(serverURL string) {
	p.metaMu.Lock()
	defer p.metaMu.Unlock()
	if p.metaFetchedAt == nil {
		p.metaFetchedAt = make(map[string]time.Time)
	}
	p.metaFetchedAt[serverURL] = time.Now()
}

func (p *Provider) clientRegistration(ctx context.Context, serverURL string, meta *oauthex.AuthServerMeta) (*ClientInfo, error) {
	existing, err := p.Storage.GetClientInfo(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	if existing != nil && !clientSecretExpired(existing) {
		return existing, nil
	}

	if p.Registration.ClientIDMetadataDocumentURL != "" {
		ci := &ClientInfo{
			ClientID:  p.Registration.ClientIDMetadataDocumentURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
		if err := p.Storage.SetClientInfo(ctx, serverURL, ci); err != nil {
			return nil, err
		}
		return ci, nil
	}

	if p.Registration.Preregistered != nil {
		ci := p.Registration.Preregistered
		if err := p.Storage.SetClientInfo(ctx, serverURL, ci); err != nil {
			return nil, err
		}
		return ci, nil
	}

	if p.Registration.Dynamic == nil {
		return nil, fmt.Errorf("no client registration configured for %q", serverURL)
	}
	if meta.RegistrationEndpoint == "" {
		return nil, fmt.Errorf("server %q does not support dynamic client registration", serverURL)
	}

	regMeta := *p.Registration.Dynamic
	if len(regMeta.RedirectURIs) == 0 {
		regMeta.RedirectURIs = []string{p.RedirectURL}
	}
	if regMeta.GrantTypes == nil {
		regMeta.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if regMeta.ResponseTypes == nil {
		regMeta.ResponseTypes = []string{"code"}
	}

	resp, err := oauthex.RegisterClient(ctx, meta.RegistrationEndpoint, &regMeta, p.httpClient())
	if err != nil {
		return nil, fmt.Errorf("dynamic client registration failed: %w", err)
	}

	ci := &ClientInfo{
		ClientID:                resp.ClientID,
		ClientSecret:            resp.ClientSecret,
		TokenEndpointAuthMethod: resp.TokenEndpointAuthMethod,
		ClientSecretExpiresAt:   resp.ClientSecretExpiresAt,
	}
	switch resp.TokenEndpointAuthMethod {
	case "client_secret_basic":
		ci.AuthStyle = oauth2.AuthStyleInHeader
	case "none":
		ci.AuthStyle = oauth2.AuthStyleInParams
		ci.ClientSecret = ""
	default:
		ci.AuthStyle = oauth2.AuthStyleInParams
	}

	if err := p.Storage.SetClientInfo(ctx, serverURL, ci); err != nil {
		return nil, err
	}
	return ci, nil
}

func (p *Provider) oauth2Config(meta *oauthex.AuthServerMeta, client *ClientInfo) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   meta.AuthorizationEndpoint,
			TokenURL:  meta.TokenEndpoint,
			AuthStyle: client.AuthStyle,
		},
		RedirectURL: p.RedirectURL,
		Scopes:      p.Scopes,
	}
}

func clientSecretExpired(ci *ClientInfo) bool {
	return ci.ClientSecretExpiresAt != 0 && time.Now().Unix() > ci.ClientSecretExpiresAt
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func pkceS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// constantTimeEqual compares two strings in constant time, as required for
// OAuth state comparison.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func joinScopes(scopes []string) string {
	out := ""
	for i, s := range scopes {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
