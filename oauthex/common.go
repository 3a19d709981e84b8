// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package oauthex implements the OAuth 2.1 extensions required by MCP
// authorization: RFC 8414 authorization server metadata discovery, RFC 9728
// protected resource metadata, RFC 7591 dynamic client registration, and
// WWW-Authenticate challenge parsing.
package oauthex

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mcpcoord/go-mcp-client/internal/json"
)

// getJSON issues a GET request to url and decodes the JSON response body
// into a value of type T, enforcing maxBytes as an upper bound on the
// response size.
func getJSON[T any](ctx context.Context, c *http.Client, url string, maxBytes int64) (*T, error) {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return &v, nil
}

// checkURLScheme rejects URLs that are not HTTP or HTTPS, guarding against
// the javascript:/data: URL class of issue when these values are later
// surfaced to a caller that might render them (see MCP go-sdk issue #526).
func checkURLScheme(rawURL string) error {
	if len(rawURL) == 0 {
		return fmt.Errorf("empty URL")
	}
	var scheme string
	for i, c := range rawURL {
		if c == ':' {
			scheme = rawURL[:i]
			break
		}
		if !isSchemeChar(c) {
			return fmt.Errorf("invalid URL %q: malformed scheme", rawURL)
		}
	}
	switch scheme {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("invalid URL %q: unsupported scheme %q", rawURL, scheme)
	}
}

func isSchemeChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}
