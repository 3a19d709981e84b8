// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements Authorization Server Metadata discovery.
// See https://www.rfc-editor.org/rfc/rfc8414.html.
package oauthex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mcpcoord/go-mcp-client/internal/util"
)

const wellKnownAuthServerPath = "/.well-known/oauth-authorization-server"

// AuthServerMeta is the subset of RFC 8414 authorization server metadata
// that MCP clients need to drive the PKCE authorization code flow.
type AuthServerMeta struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`

	// ClientIDMetadataDocumentSupported indicates that this server supports
	// the client-ID-metadata-document registration mechanism, per
	// https://modelcontextprotocol.io/specification/2025-11-25/basic/authorization#client-id-metadata-documents.
	ClientIDMetadataDocumentSupported bool `json:"client_id_metadata_document_supported,omitempty"`
}

// SupportsPKCES256 reports whether the server advertises S256 PKCE support.
// MCP requires PKCE S256 (spec §4.4); servers that omit the
// code_challenge_methods_supported field are assumed compliant per RFC 8414
// §2 (the field is optional and its absence does not imply non-support),
// but a server that lists the field and omits S256 is rejected.
func (m *AuthServerMeta) SupportsPKCES256() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return false
}

// GetAuthServerMeta discovers authorization server metadata for the server
// at issuerURL by fetching its well-known metadata document. It returns
// nil, nil if no metadata document is available (HTTP 404), so that callers
// can fall back to the pre-RFC-8414 default endpoints described in spec
// §4.4 step 1.
func GetAuthServerMeta(ctx context.Context, issuerURL string, c *http.Client) (_ *AuthServerMeta, err error) {
	defer util.Wrapf(&err, "GetAuthServerMeta(%q)", issuerURL)

	u, err := url.Parse(issuerURL)
	if err != nil {
		return nil, err
	}
	// Per RFC 8414 §3.1, the well-known path is inserted before any path
	// component already present on the issuer URL.
	issuerPath := strings.TrimSuffix(u.Path, "/")
	u.Path = wellKnownAuthServerPath + issuerPath

	if c == nil {
		c = http.DefaultClient
	}
	meta, err := getJSON[AuthServerMeta](ctx, c, u.String(), 1<<20)
	if err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if meta.Issuer == "" {
		return nil, fmt.Errorf("authorization server metadata missing issuer")
	}
	if !meta.SupportsPKCES256() {
		return nil, fmt.Errorf("authorization server %q does not support PKCE S256", meta.Issuer)
	}
	return meta, nil
}

func isHTTPStatus(err error, code int) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), http.StatusText(code))
}
