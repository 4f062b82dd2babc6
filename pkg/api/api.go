// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package api exposes the push-facing HTTP surface: authenticated gem
// publishes and the public JSON gem lookup.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/ddollar/gemcutter/pkg/compress"
	"github.com/ddollar/gemcutter/pkg/cutter"
	"github.com/ddollar/gemcutter/pkg/db"
	"github.com/ddollar/gemcutter/pkg/hostess"
)

const accessDenied = "Access Denied. Please sign up for an account at http://gemcutter.org"

// maxGemSize caps an upload body. Gems are source archives; anything
// bigger is rejected before parsing.
const maxGemSize = 128 << 20

// Server is the API http.Handler.
type Server struct {
	store  *db.Store
	cutter *cutter.Cutter
	mux    *http.ServeMux

	// maxGemSize bounds accepted upload bodies.
	maxGemSize int64
}

// New creates the API server over the metadata store and the publish
// pipeline.
func New(store *db.Store, c *cutter.Cutter) *Server {
	s := &Server{
		store:      store,
		cutter:     c,
		mux:        http.NewServeMux(),
		maxGemSize: maxGemSize,
	}
	s.mux.HandleFunc("/api/v1/gems", s.handlePush)
	s.mux.HandleFunc("/api/v1/gems/", s.handleShow)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.mux.ServeHTTP(w, req)
}

func (s *Server) handlePush(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.store.UserByKey(req.Header.Get("Authorization"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respond(w, http.StatusUnauthorized, accessDenied)
			return
		}
		log.Printf("api: resolve key: %v", err)
		respond(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	if err := compress.DecompressRequest(req); err != nil {
		respond(w, http.StatusBadRequest, "Could not decompress request body.")
		return
	}
	// Read one byte past the cap so an at-the-limit gem is
	// distinguishable from an oversize one; a truncated body must
	// never reach the cutter looking like a complete gem.
	body, err := io.ReadAll(io.LimitReader(req.Body, s.maxGemSize+1))
	if err != nil {
		respond(w, http.StatusBadRequest, "Could not read gem upload.")
		return
	}
	if int64(len(body)) > s.maxGemSize {
		respond(w, http.StatusRequestEntityTooLarge, "Gem upload is too large.")
		return
	}

	res := s.cutter.Process(req.Context(), user, hostess.Subdomain(req.Host), body)
	respond(w, res.Code, res.Message)
}

// gemInfo is the JSON shape of the gem lookup endpoint.
type gemInfo struct {
	Name      string        `json:"name"`
	Downloads int64         `json:"downloads"`
	Version   string        `json:"version"`
	Authors   string        `json:"authors"`
	Info      string        `json:"info"`
	Versions  []versionInfo `json:"versions"`
}

type versionInfo struct {
	Number     string `json:"number"`
	Platform   string `json:"platform"`
	Prerelease bool   `json:"prerelease"`
	Downloads  int64  `json:"downloads"`
	BuiltAt    string `json:"built_at,omitempty"`
}

func (s *Server) handleShow(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(req.URL.Path, "/api/v1/gems/")
	name, ok := strings.CutSuffix(rest, ".json")
	if !ok || name == "" || strings.Contains(name, "/") {
		http.NotFound(w, req)
		return
	}

	d, err := s.store.Snapshot()
	if err != nil {
		log.Printf("api: snapshot: %v", err)
		respond(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	g := d.Gems[db.GemKey(hostess.Subdomain(req.Host), name)]
	if g == nil {
		respond(w, http.StatusNotFound, "This gem could not be found.")
		return
	}
	latest := g.Latest()
	if latest == nil {
		respond(w, http.StatusNotFound, "Not hosted here.")
		return
	}

	info := gemInfo{
		Name:      g.Name,
		Downloads: g.Downloads,
		Version:   latest.Number,
		Authors:   latest.Authors,
		Info:      latest.Info(),
	}
	for _, v := range g.Versions {
		vi := versionInfo{
			Number:     v.Number,
			Platform:   v.Platform,
			Prerelease: v.Prerelease,
			Downloads:  v.Downloads,
		}
		if !v.BuiltAt.IsZero() {
			vi.BuiltAt = v.BuiltAt.UTC().Format("2006-01-02")
		}
		info.Versions = append(info.Versions, vi)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		log.Printf("api: encode gem info: %v", err)
	}
}

func respond(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, message)
}
