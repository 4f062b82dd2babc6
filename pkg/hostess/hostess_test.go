// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hostess

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ddollar/gemcutter/pkg/vault"
)

type recorded struct {
	subdomain, slug string
	count           int
}

func (r *recorded) RecordDownload(subdomain, slug string) {
	r.subdomain = subdomain
	r.slug = slug
	r.count++
}

func newTestVault(t *testing.T) *vault.FS {
	t.Helper()
	v, err := vault.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return v
}

func put(t *testing.T, v vault.Vault, key string, data []byte) {
	t.Helper()
	if err := v.Put(context.Background(), key, data, vault.PutOptions{}); err != nil {
		t.Fatalf("Put %s: %v", key, err)
	}
}

func get(t *testing.T, h http.Handler, host, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	for k, val := range hdr {
		req.Header.Set(k, val)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServeFullIndex(t *testing.T) {
	v := newTestVault(t)
	put(t, v, "specs.json.gz", []byte("index-bytes"))
	h := New(v, &recorded{}, false)

	w := get(t, h, "gemcutter.org", "/specs.json.gz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/x-gzip" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=3" {
		t.Errorf("Cache-Control = %q", got)
	}
	if w.Header().Get("ETag") == "" {
		t.Error("missing ETag")
	}
	if w.Header().Get("Last-Modified") == "" {
		t.Error("missing Last-Modified")
	}
	if w.Body.String() != "index-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestConditionalGet(t *testing.T) {
	v := newTestVault(t)
	put(t, v, "latest_specs.json.gz", []byte("latest"))
	h := New(v, &recorded{}, false)

	first := get(t, h, "gemcutter.org", "/latest_specs.json.gz", nil)
	etag := first.Header().Get("ETag")
	lastMod := first.Header().Get("Last-Modified")
	if etag == "" || lastMod == "" {
		t.Fatalf("validators missing: etag=%q last-modified=%q", etag, lastMod)
	}

	tests := []struct {
		name string
		hdr  map[string]string
		want int
	}{
		{"matching etag", map[string]string{"If-None-Match": etag}, 304},
		{"wildcard etag", map[string]string{"If-None-Match": "*"}, 304},
		{"stale etag", map[string]string{"If-None-Match": `"deadbeef"`}, 200},
		{"not modified since", map[string]string{"If-Modified-Since": lastMod}, 304},
		{"modified since epoch", map[string]string{"If-Modified-Since": "Thu, 01 Jan 1970 00:00:00 GMT"}, 200},
		{"stale etag wins over fresh time", map[string]string{"If-None-Match": `"deadbeef"`, "If-Modified-Since": lastMod}, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, h, "gemcutter.org", "/latest_specs.json.gz", tt.hdr)
			if w.Code != tt.want {
				t.Errorf("code = %d, want %d", w.Code, tt.want)
			}
			if tt.want == 304 && w.Body.Len() != 0 {
				t.Errorf("304 carried a body of %d bytes", w.Body.Len())
			}
		})
	}
}

func TestMissingArtifact(t *testing.T) {
	h := New(newTestVault(t), &recorded{}, false)
	if w := get(t, h, "gemcutter.org", "/prerelease_specs.json.gz", nil); w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}

func TestQuickSpec(t *testing.T) {
	v := newTestVault(t)
	put(t, v, "quick/json/mylib-1.0.0.gemspec.rz", []byte("deflated"))
	h := New(v, &recorded{}, false)

	w := get(t, h, "gemcutter.org", "/quick/json/mylib-1.0.0.gemspec.rz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/x-deflate" {
		t.Errorf("Content-Type = %q", got)
	}

	if w := get(t, h, "gemcutter.org", "/quick/json/mylib-1.0.0.tar", nil); w.Code != http.StatusNotFound {
		t.Errorf("wrong suffix code = %d, want 404", w.Code)
	}
}

func TestGemFetchRecordsDownload(t *testing.T) {
	v := newTestVault(t)
	put(t, v, "gems/mylib-1.0.0.gem", []byte("gem-bytes"))
	rec := &recorded{}
	h := New(v, rec, false)

	w := get(t, h, "gemcutter.org", "/gems/mylib-1.0.0.gem", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if rec.count != 1 || rec.subdomain != "" || rec.slug != "mylib-1.0.0" {
		t.Errorf("recorded = %+v", rec)
	}

	// Misses are recorded too; the event resolver drops unknown slugs.
	if w := get(t, h, "gemcutter.org", "/gems/nope-0.0.1.gem", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing gem code = %d, want 404", w.Code)
	}
	if rec.count != 2 {
		t.Errorf("count = %d, want 2", rec.count)
	}
}

func TestSubdomainScoping(t *testing.T) {
	v := newTestVault(t)
	put(t, v, "acme/specs.json.gz", []byte("acme-index"))
	put(t, v, "acme/gems/tool-2.0.0.gem", []byte("tool"))
	rec := &recorded{}
	h := New(v, rec, false)

	w := get(t, h, "acme.gemcutter.org", "/specs.json.gz", nil)
	if w.Code != http.StatusOK || w.Body.String() != "acme-index" {
		t.Fatalf("scoped index: code=%d body=%q", w.Code, w.Body.String())
	}
	// The default host must not see acme's artifacts.
	if w := get(t, h, "gemcutter.org", "/specs.json.gz", nil); w.Code != http.StatusNotFound {
		t.Errorf("default scope code = %d, want 404", w.Code)
	}

	get(t, h, "acme.gemcutter.org:8080", "/gems/tool-2.0.0.gem", nil)
	if rec.subdomain != "acme" {
		t.Errorf("recorded subdomain = %q, want acme", rec.subdomain)
	}
}

type redirectVault struct {
	*vault.FS
	base string
}

func (r *redirectVault) RedirectURL(key string) (string, bool) {
	return r.base + "/" + key, true
}

func TestGemRedirect(t *testing.T) {
	inner := newTestVault(t)
	rv := &redirectVault{FS: inner, base: "https://cdn.example.com/bucket"}
	rec := &recorded{}
	h := New(rv, rec, true)

	w := get(t, h, "gemcutter.org", "/gems/mylib-1.0.0.gem", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("code = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://cdn.example.com/bucket/gems/mylib-1.0.0.gem" {
		t.Errorf("Location = %q", got)
	}
	if rec.count != 1 {
		t.Errorf("download not recorded before redirect")
	}

	// Redirect mode off streams even when the vault offers a URL.
	h = New(rv, rec, false)
	put(t, inner, "gems/mylib-1.0.0.gem", []byte("gem-bytes"))
	if w := get(t, h, "gemcutter.org", "/gems/mylib-1.0.0.gem", nil); w.Code != http.StatusOK {
		t.Errorf("streaming code = %d, want 200", w.Code)
	}
}

func TestSubdomainParsing(t *testing.T) {
	tests := []struct {
		host, want string
	}{
		{"gemcutter.org", ""},
		{"gemcutter.org:443", ""},
		{"acme.gemcutter.org", "acme"},
		{"acme.gemcutter.org:8080", "acme"},
		{"localhost", "localhost"},
	}
	for _, tt := range tests {
		if got := Subdomain(tt.host); got != tt.want {
			t.Errorf("Subdomain(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(newTestVault(t), &recorded{}, false)
	req := httptest.NewRequest(http.MethodPost, "/specs.json.gz", nil)
	req.Host = "gemcutter.org"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 405", w.Code)
	}
}
