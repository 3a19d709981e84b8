// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"net/url"
	"strings"
)

// normalizeServerURL canonicalizes a server URL for use as a storage key,
// so that https://MCP.EXAMPLE.COM:443/api/ and https://mcp.example.com/api
// resolve to the same stored state. The function is idempotent:
// normalizeServerURL(normalizeServerURL(u)) == normalizeServerURL(u).
func normalizeServerURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Host = strings.ToLower(u.Host)
	if host, port, err := splitDefaultPort(u); err == nil {
		u.Host = host
		_ = port
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""
	u.RawQuery = ""
	return u.String(), nil
}

// splitDefaultPort strips the port from u.Host if it is the scheme's
// default (80 for http, 443 for https).
func splitDefaultPort(u *url.URL) (host string, port string, err error) {
	host = u.Host
	i := strings.LastIndex(host, ":")
	if i < 0 {
		return host, "", nil
	}
	port = host[i+1:]
	hostname := host[:i]
	switch {
	case u.Scheme == "https" && port == "443":
		return hostname, port, nil
	case u.Scheme == "http" && port == "80":
		return hostname, port, nil
	default:
		return host, port, nil
	}
}
