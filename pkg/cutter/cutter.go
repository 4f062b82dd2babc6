// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cutter is the publish pipeline: it parses an uploaded gem,
// resolves which gem and subdomain it belongs to, authorizes the push,
// commits the metadata transactionally, stores the blobs, and enqueues
// the index rebuild for the scope.
package cutter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/ddollar/gemcutter/pkg/compress"
	"github.com/ddollar/gemcutter/pkg/db"
	"github.com/ddollar/gemcutter/pkg/gemspec"
	"github.com/ddollar/gemcutter/pkg/jobs"
	"github.com/ddollar/gemcutter/pkg/vault"
)

// Result is the outcome of one publish request: an HTTP status code and a
// plain-text message for the client.
type Result struct {
	Code    int
	Message string
}

// Rebuilder rebuilds the index artifacts of one subdomain scope. It is
// what the cutter enqueues after a successful publish.
type Rebuilder interface {
	Rebuild(ctx context.Context, subdomain string) error
}

// Cutter orchestrates publishes. One Cutter serves all requests; it holds
// no per-request state.
type Cutter struct {
	store   *db.Store
	vault   vault.Vault
	queue   *jobs.Queue
	builder Rebuilder
}

// New returns a Cutter. The builder is invoked through the queue, never
// on the request path.
func New(store *db.Store, v vault.Vault, queue *jobs.Queue, builder Rebuilder) *Cutter {
	return &Cutter{store: store, vault: v, queue: queue, builder: builder}
}

// Process runs the publish pipeline for one uploaded gem. The subdomain
// argument is the request's origin label; the reserved name resolves to
// the default scope. It always returns a Result, never panics through.
func (c *Cutter) Process(ctx context.Context, user *db.User, subdomain string, body []byte) *Result {
	spec, err := gemspec.Parse(bytes.NewReader(body))
	if err != nil {
		return &Result{
			Code: http.StatusUnprocessableEntity,
			Message: "Gemcutter cannot process this gem.\n" +
				"Please try rebuilding it and installing it locally to make sure it's valid.\n" +
				fmt.Sprintf("Error: %v", err),
		}
	}

	snap, err := c.store.Snapshot()
	if err != nil {
		return serverError("loading gem metadata", err)
	}
	if denied := authorize(snap, user, subdomain, spec); denied != nil {
		return denied
	}

	if err := c.commit(user, subdomain, spec); err != nil {
		return &Result{
			Code:    http.StatusForbidden,
			Message: fmt.Sprintf("There was a problem saving your gem: %v", err),
		}
	}

	if err := c.writeGem(ctx, subdomain, spec, body); err != nil {
		// Metadata is already committed; the version stays unindexed
		// until a later successful publish or rebuild pass, so the
		// indexes never advertise a gem we cannot serve.
		return serverError("storing gem", err)
	}

	if err := c.store.SetIndexed(resolveScope(subdomain), spec.Name, spec.Version, spec.Platform, true); err != nil {
		return serverError("marking gem indexed", err)
	}

	c.enqueueRebuild(subdomain)
	return &Result{
		Code:    http.StatusOK,
		Message: fmt.Sprintf("Successfully registered gem: %s (%s)", spec.Name, spec.Version),
	}
}

// resolveScope maps an origin label to the metadata scope name.
func resolveScope(subdomain string) string {
	if subdomain == db.ReservedSubdomain {
		return ""
	}
	return subdomain
}

// authorize decides whether user may push spec under subdomain, against a
// snapshot of the store. Order matters and each failure names its cause:
// the trusted importer may create versions of gems it does not own, an
// unclaimed gem is open to anyone, then ownership, then subdomain
// membership.
func authorize(d *db.Data, user *db.User, subdomain string, spec *gemspec.Spec) *Result {
	scope := resolveScope(subdomain)
	gem := d.Gems[db.GemKey(scope, spec.Name)]

	if user.Importer && (gem == nil || gem.FindVersion(spec.Version, spec.Platform) == nil) {
		return nil
	}
	if gem == nil || gem.Pushable() {
		return nil
	}
	if gem.OwnedBy(user.Login) {
		return nil
	}
	if sub := d.Subdomains[scope]; sub != nil {
		if sub.BelongsTo(user.Login) {
			return nil
		}
		return &Result{
			Code:    http.StatusForbidden,
			Message: fmt.Sprintf("You are not a member of the %q subdomain.", scope),
		}
	}
	return &Result{
		Code:    http.StatusForbidden,
		Message: "You do not have permission to push to this gem: you are not an owner.",
	}
}

// commit applies the manifest inside one store transaction: subdomain
// resolution, gem and version creation, ownership for a new gem, and the
// sibling position recompute all land together or not at all.
func (c *Cutter) commit(user *db.User, subdomain string, spec *gemspec.Spec) error {
	scope := resolveScope(subdomain)
	return c.store.MutateData(func(d *db.Data) error {
		d.ResolveSubdomain(scope, user.Login)
		gem, created := d.FindOrCreateGem(spec.Name, scope)
		if created && !user.Importer {
			gem.AddOwner(user.Login)
		}
		version, isNew := gem.FindOrCreateVersion(spec.Version, spec.Platform)
		return d.ApplyManifest(gem, version, isNew, spec)
	})
}

// writeGem stores the raw gem blob and the deflated abbreviated spec.
func (c *Cutter) writeGem(ctx context.Context, subdomain string, spec *gemspec.Spec, body []byte) error {
	scope := resolveScope(subdomain)
	opts := vault.PutOptions{ContentType: "application/octet-stream", PublicRead: true}
	if err := c.vault.Put(ctx, vault.GemKey(scope, spec.OriginalName()), body, opts); err != nil {
		return err
	}

	raw, err := json.Marshal(spec.Abbreviated())
	if err != nil {
		return fmt.Errorf("marshal quick spec: %w", err)
	}
	quick, err := compress.Deflate(raw)
	if err != nil {
		return fmt.Errorf("deflate quick spec: %w", err)
	}
	opts.ContentType = "application/x-deflate"
	return c.vault.Put(ctx, vault.QuickSpecKey(scope, spec.OriginalName()), quick, opts)
}

func (c *Cutter) enqueueRebuild(subdomain string) {
	scope := resolveScope(subdomain)
	job := jobs.NewJob("rebuild-index:"+vault.FullIndexKey(scope), func(ctx context.Context) error {
		return c.builder.Rebuild(ctx, scope)
	})
	if !c.queue.Enqueue(job) {
		log.Printf("index rebuild for scope %q not enqueued: queue shut down", scope)
	}
}

// RecordDownload enqueues a best-effort download-count increment for the
// version named by slug. Failures never surface to the client.
func (c *Cutter) RecordDownload(subdomain, slug string) {
	scope := resolveScope(subdomain)
	job := jobs.NewJob("record-download:"+slug, func(ctx context.Context) error {
		err := c.store.IncrementDownloads(scope, slug)
		if errors.Is(err, db.ErrNotFound) {
			// Fetches of unknown slugs are not worth retrying.
			return nil
		}
		return err
	})
	if !c.queue.Enqueue(job) {
		log.Printf("download event for %q dropped: queue shut down", slug)
	}
}

func serverError(what string, err error) *Result {
	log.Printf("publish: %s: %v", what, err)
	return &Result{
		Code:    http.StatusInternalServerError,
		Message: fmt.Sprintf("There was a problem %s. Please try again.", what),
	}
}
