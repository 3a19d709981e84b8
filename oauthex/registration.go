// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements Dynamic Client Registration.
// See https://www.rfc-editor.org/rfc/rfc7591.html.
package oauthex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mcpcoord/go-mcp-client/internal/json"
	"github.com/mcpcoord/go-mcp-client/internal/util"
)

// ClientRegistrationMetadata describes the client metadata submitted to an
// authorization server's dynamic client registration endpoint (RFC 7591
// §2). MCP clients typically register once per authorization server and
// cache the resulting ClientRegistrationResponse.
type ClientRegistrationMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	SoftwareID              string   `json:"software_id,omitempty"`
	SoftwareVersion         string   `json:"software_version,omitempty"`
}

// ClientRegistrationResponse is the authorization server's response to a
// successful registration request (RFC 7591 §3.2.1).
type ClientRegistrationResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64  `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   int64  `json:"client_secret_expires_at,omitempty"`
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`

	ClientRegistrationMetadata
}

// registrationError is the RFC 7591 §3.2.2 error response shape.
type registrationError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// RegisterClient registers a new OAuth client with the authorization server
// at endpoint (the RegistrationEndpoint from [AuthServerMeta]), using the
// given client (or the default client if nil). It returns the client
// credentials assigned by the server.
func RegisterClient(ctx context.Context, endpoint string, metadata *ClientRegistrationMetadata, c *http.Client) (_ *ClientRegistrationResponse, err error) {
	defer util.Wrapf(&err, "RegisterClient(%q)", endpoint)

	if err := checkURLScheme(endpoint); err != nil {
		return nil, err
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var regErr registrationError
		if jsonErr := json.Unmarshal(data, &regErr); jsonErr == nil && regErr.Error != "" {
			return nil, fmt.Errorf("registration failed: %s: %s", regErr.Error, regErr.ErrorDescription)
		}
		return nil, fmt.Errorf("registration failed: unexpected status %s", resp.Status)
	}

	var out ClientRegistrationResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding registration response: %w", err)
	}
	if out.ClientID == "" {
		return nil, fmt.Errorf("registration response missing client_id")
	}
	return &out, nil
}
