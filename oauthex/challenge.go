// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements parsing of the WWW-Authenticate response header,
// RFC 7235 §4.1, as used to discover the resource_metadata URL (RFC 9728)
// and requested scope on a 401 challenge.
package oauthex

import (
	"fmt"
	"strings"
)

// challenge is one auth-scheme challenge from a WWW-Authenticate header,
// e.g. `Bearer realm="example", resource_metadata="https://..."`.
type challenge struct {
	Scheme string
	Params map[string]string
}

// ParseWWWAuthenticate parses one or more WWW-Authenticate header values
// into their component challenges.
func ParseWWWAuthenticate(headers []string) ([]challenge, error) {
	var challenges []challenge
	for _, h := range headers {
		cs, err := parseWWWAuthenticateHeader(h)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, cs...)
	}
	return challenges, nil
}

// parseWWWAuthenticateHeader parses a single header value, which may
// contain multiple comma-separated challenges.
func parseWWWAuthenticateHeader(h string) ([]challenge, error) {
	var challenges []challenge
	rest := strings.TrimSpace(h)
	if rest == "" {
		return nil, fmt.Errorf("oauthex: malformed WWW-Authenticate header %q", h)
	}
	for rest != "" {
		start := rest
		scheme, tail, ok := cutToken(rest)
		if !ok {
			return nil, fmt.Errorf("oauthex: malformed WWW-Authenticate header %q", h)
		}
		c := challenge{Scheme: strings.ToLower(scheme), Params: make(map[string]string)}
		tail = strings.TrimSpace(tail)
		for tail != "" {
			// A new scheme begins when we see a bare token followed by
			// whitespace and no '=' before the next comma; this minimal
			// parser instead relies on auth-param syntax `key=value`.
			key, afterKey, ok := cutToken(tail)
			if !ok {
				break
			}
			afterKey = strings.TrimSpace(afterKey)
			if !strings.HasPrefix(afterKey, "=") {
				// Not an auth-param; must be the start of the next challenge.
				break
			}
			afterKey = strings.TrimPrefix(afterKey, "=")
			afterKey = strings.TrimSpace(afterKey)
			val, remainder := cutValue(afterKey)
			c.Params[strings.ToLower(key)] = val
			remainder = strings.TrimSpace(remainder)
			remainder = strings.TrimPrefix(remainder, ",")
			tail = strings.TrimSpace(remainder)
		}
		challenges = append(challenges, c)
		rest = strings.TrimSpace(tail)
		rest = strings.TrimPrefix(rest, ",")
		rest = strings.TrimSpace(rest)
		if rest == start {
			break
		}
	}
	return challenges, nil
}

// cutToken splits off a leading RFC 7230 token (scheme name or param key).
func cutToken(s string) (token, rest string, ok bool) {
	i := 0
	for i < len(s) && isTokenChar(rune(s[i])) {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	return s[:i], s[i:], true
}

func isTokenChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case strings.ContainsRune("!#$%&'*+-.^_`|~", c):
		return true
	}
	return false
}

// cutValue parses a quoted-string or bare token value from the start of s,
// returning the unquoted value and the remainder of the string.
func cutValue(s string) (value, rest string) {
	if strings.HasPrefix(s, `"`) {
		s = s[1:]
		var b strings.Builder
		for i := 0; i < len(s); i++ {
			if s[i] == '\\' && i+1 < len(s) {
				b.WriteByte(s[i+1])
				i++
				continue
			}
			if s[i] == '"' {
				return b.String(), s[i+1:]
			}
			b.WriteByte(s[i])
		}
		return b.String(), ""
	}
	i := 0
	for i < len(s) && s[i] != ',' {
		i++
	}
	return strings.TrimSpace(s[:i]), s[i:]
}
