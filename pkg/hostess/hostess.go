// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hostess serves gem index artifacts and gem blobs over HTTP.
// Every route is scoped by the subdomain taken from the first label of
// the Host header; the reserved label maps to the default scope.
package hostess

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/ddollar/gemcutter/pkg/db"
	"github.com/ddollar/gemcutter/pkg/vault"
)

// maxAge is the shared-cache lifetime of everything hostess serves. The
// indexes are rebuilt out of band, so clients get a short window only.
const maxAge = "public, max-age=3"

// DownloadRecorder counts a gem fetch. Implementations must not block
// the serving path.
type DownloadRecorder interface {
	RecordDownload(subdomain, slug string)
}

// Hostess is the read-side HTTP handler over a storage vault.
type Hostess struct {
	vault     vault.Vault
	downloads DownloadRecorder
	redirect  bool
	mux       *http.ServeMux
}

// New creates a Hostess over v. When redirect is true and the vault can
// produce direct URLs, gem fetches are answered with a redirect instead
// of streaming the blob.
func New(v vault.Vault, downloads DownloadRecorder, redirect bool) *Hostess {
	h := &Hostess{
		vault:     v,
		downloads: downloads,
		redirect:  redirect,
		mux:       http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

func (h *Hostess) setupRoutes() {
	h.mux.HandleFunc("/specs."+vault.FormatTag+".gz", h.handleIndex(vault.FullIndexKey))
	h.mux.HandleFunc("/latest_specs."+vault.FormatTag+".gz", h.handleIndex(vault.LatestIndexKey))
	h.mux.HandleFunc("/prerelease_specs."+vault.FormatTag+".gz", h.handleIndex(vault.PrereleaseIndexKey))
	h.mux.HandleFunc("/quick/"+vault.FormatTag+"/", h.handleQuickSpec)
	h.mux.HandleFunc("/gems/", h.handleGem)
}

// ServeHTTP implements http.Handler.
func (h *Hostess) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.mux.ServeHTTP(w, req)
}

// Subdomain extracts the namespace label from a host name: the first
// dot-separated label, with only the reserved label mapping to the
// default scope.
func Subdomain(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	label, _, _ := strings.Cut(host, ".")
	if label == db.ReservedSubdomain {
		return ""
	}
	return label
}

func (h *Hostess) handleIndex(key func(subdomain string) string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.serve(w, req, key(Subdomain(req.Host)), "application/x-gzip")
	}
}

func (h *Hostess) handleQuickSpec(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(req.URL.Path, "/quick/"+vault.FormatTag+"/")
	orig, ok := strings.CutSuffix(name, ".gemspec.rz")
	if !ok || orig == "" || strings.Contains(orig, "/") {
		http.NotFound(w, req)
		return
	}
	h.serve(w, req, vault.QuickSpecKey(Subdomain(req.Host), orig), "application/x-deflate")
}

func (h *Hostess) handleGem(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(req.URL.Path, "/gems/")
	orig, ok := strings.CutSuffix(name, ".gem")
	if !ok || orig == "" || strings.Contains(orig, "/") {
		http.NotFound(w, req)
		return
	}
	sub := Subdomain(req.Host)
	h.downloads.RecordDownload(sub, orig)

	key := vault.GemKey(sub, orig)
	if h.redirect {
		if url, ok := h.vault.RedirectURL(key); ok {
			w.Header().Set("Cache-Control", maxAge)
			http.Redirect(w, req, url, http.StatusFound)
			return
		}
	}
	h.serve(w, req, key, "application/octet-stream")
}

// serve streams the object under key, honoring the request's caching
// validators. A current client copy gets an empty 304.
func (h *Hostess) serve(w http.ResponseWriter, req *http.Request, key, contentType string) {
	w.Header().Set("Cache-Control", maxAge)

	cond := vault.Conditional{}
	if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			cond.IfModifiedSince = t
		}
	}
	if inm := req.Header.Get("If-None-Match"); inm != "" {
		cond.IfNoneMatch = strings.Split(inm, ",")
	}

	obj, err := h.vault.Get(req.Context(), key, cond)
	switch {
	case errors.Is(err, vault.ErrNotModified):
		w.WriteHeader(http.StatusNotModified)
		return
	case errors.Is(err, vault.ErrNotFound):
		http.NotFound(w, req)
		return
	case err != nil:
		log.Printf("hostess: get %s: %v", key, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if obj.ETag != "" {
		w.Header().Set("ETag", `"`+obj.ETag+`"`)
	}
	if !obj.LastModified.IsZero() {
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(obj.Body)
}
