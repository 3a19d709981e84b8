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

func TestGetAuthServerMetaSuccess(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"issuer": %q,
			"authorization_endpoint": %q,
			"token_endpoint": %q,
			"code_challenge_methods_supported": ["S256"]
		}`, "https://issuer.example", "https://issuer.example/authorize", "https://issuer.example/token")
	}))
	defer server.Close()

	meta, err := GetAuthServerMeta(context.Background(), server.URL, server.Client())
	if err != nil {
		t.Fatalf("GetAuthServerMeta: %v", err)
	}
	if meta.Issuer != "https://issuer.example" {
		t.Errorf("Issuer = %q, want https://issuer.example", meta.Issuer)
	}
	if !meta.SupportsPKCES256() {
		t.Error("SupportsPKCES256() = false, want true")
	}
	if requestedPath != wellKnownAuthServerPath {
		t.Errorf("requested path = %q, want %q", requestedPath, wellKnownAuthServerPath)
	}
}

func TestGetAuthServerMetaInsertsWellKnownBeforeExistingPath(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"issuer":"x","authorization_endpoint":"y","token_endpoint":"z"}`)
	}))
	defer server.Close()

	if _, err := GetAuthServerMeta(context.Background(), server.URL+"/tenant/abc", server.Client()); err != nil {
		t.Fatalf("GetAuthServerMeta: %v", err)
	}
	want := wellKnownAuthServerPath + "/tenant/abc"
	if requestedPath != want {
		t.Errorf("requested path = %q, want %q", requestedPath, want)
	}
}

func TestGetAuthServerMetaMissingIsNilNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	meta, err := GetAuthServerMeta(context.Background(), server.URL, server.Client())
	if err != nil {
		t.Fatalf("GetAuthServerMeta: %v, want nil error on 404", err)
	}
	if meta != nil {
		t.Errorf("meta = %+v, want nil", meta)
	}
}

func TestGetAuthServerMetaRejectsNonS256Only(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"issuer": "https://issuer.example",
			"authorization_endpoint": "https://issuer.example/authorize",
			"token_endpoint": "https://issuer.example/token",
			"code_challenge_methods_supported": ["plain"]
		}`)
	}))
	defer server.Close()

	if _, err := GetAuthServerMeta(context.Background(), server.URL, server.Client()); err == nil {
		t.Fatal("GetAuthServerMeta with only plain PKCE support: got nil error, want error")
	}
}

func TestSupportsPKCES256AbsentFieldAssumesCompliant(t *testing.T) {
	m := &AuthServerMeta{Issuer: "x"}
	if !m.SupportsPKCES256() {
		t.Error("SupportsPKCES256() with absent field = false, want true (RFC 8414 optional field)")
	}
}
