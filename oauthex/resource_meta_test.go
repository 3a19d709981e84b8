// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package oauthex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetProtectedResourceMetadataSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"resource": %q,
			"authorization_servers": ["https://as.example"],
			"scopes_supported": ["openid", "profile"]
		}`, "https://resource.example")
	}))
	defer server.Close()

	prm, err := GetProtectedResourceMetadata(context.Background(), ProtectedResourceMetadataURL{
		URL:      server.URL,
		Resource: "https://resource.example",
	}, server.Client())
	if err != nil {
		t.Fatalf("GetProtectedResourceMetadata: %v", err)
	}
	if prm.Resource != "https://resource.example" {
		t.Errorf("Resource = %q", prm.Resource)
	}
	if len(prm.AuthorizationServers) != 1 || prm.AuthorizationServers[0] != "https://as.example" {
		t.Errorf("AuthorizationServers = %v", prm.AuthorizationServers)
	}
}

func TestGetProtectedResourceMetadataResourceMismatchIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"resource":"https://attacker.example"}`)
	}))
	defer server.Close()

	_, err := GetProtectedResourceMetadata(context.Background(), ProtectedResourceMetadataURL{
		URL:      server.URL,
		Resource: "https://resource.example",
	}, server.Client())
	if err == nil {
		t.Fatal("GetProtectedResourceMetadata with mismatched resource: got nil error, want error")
	}
}

func TestGetProtectedResourceMetadataRejectsUnsafeAuthServerScheme(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"resource": %q,
			"authorization_servers": ["javascript:alert(1)"]
		}`, "https://resource.example")
	}))
	defer server.Close()

	_, err := GetProtectedResourceMetadata(context.Background(), ProtectedResourceMetadataURL{
		URL:      server.URL,
		Resource: "https://resource.example",
	}, server.Client())
	if err == nil {
		t.Fatal("GetProtectedResourceMetadata with javascript: authorization server URL: got nil error, want error")
	}
}

func TestProtectedResourceMetadataURLsIncludesDiscoveredAndFallbacks(t *testing.T) {
	urls := ProtectedResourceMetadataURLs("https://resource.example/.well-known/oauth-protected-resource", "https://resource.example/mcp")
	if len(urls) != 3 {
		t.Fatalf("got %d urls, want 3: %+v", len(urls), urls)
	}
	if urls[0].URL != "https://resource.example/.well-known/oauth-protected-resource" {
		t.Errorf("urls[0].URL = %q", urls[0].URL)
	}
	if urls[1].URL != "https://resource.example/.well-known/oauth-protected-resource/mcp" {
		t.Errorf("urls[1].URL = %q, want path-based fallback", urls[1].URL)
	}
	if urls[2].URL != "https://resource.example/.well-known/oauth-protected-resource" {
		t.Errorf("urls[2].URL = %q, want root fallback", urls[2].URL)
	}
}

func TestProtectedResourceMetadataURLsWithoutDiscoveredURL(t *testing.T) {
	urls := ProtectedResourceMetadataURLs("", "https://resource.example/mcp")
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2 (no discovered URL supplied): %+v", len(urls), urls)
	}
}
