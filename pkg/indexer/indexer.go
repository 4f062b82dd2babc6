// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package indexer derives the three index artifacts of a subdomain scope
// from the metadata store: the full index of all indexed versions, the
// latest-release index, and the prerelease index. Each artifact is a JSON
// array of [name, version, platform] triples, gzip-compressed and written
// wholesale through the vault. A rebuild is a full recomputation, so the
// rebuild job is idempotent and safe to retry.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ddollar/gemcutter/pkg/compress"
	"github.com/ddollar/gemcutter/pkg/db"
	"github.com/ddollar/gemcutter/pkg/vault"
)

// Entry is one index row: gem name, version number, platform.
type Entry [3]string

// Builder rebuilds index artifacts from store state.
type Builder struct {
	store *db.Store
	vault vault.Vault
}

// New returns a Builder over the given store and vault.
func New(store *db.Store, v vault.Vault) *Builder {
	return &Builder{store: store, vault: v}
}

// Rebuild recomputes and writes all three index artifacts for one
// subdomain scope ("" is the default scope).
func (b *Builder) Rebuild(ctx context.Context, subdomain string) error {
	d, err := b.store.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}

	artifacts := []struct {
		key     string
		entries []Entry
	}{
		{vault.FullIndexKey(subdomain), FullIndex(d, subdomain)},
		{vault.LatestIndexKey(subdomain), LatestIndex(d, subdomain)},
		{vault.PrereleaseIndexKey(subdomain), PrereleaseIndex(d, subdomain)},
	}
	for _, a := range artifacts {
		if err := b.write(ctx, a.key, a.entries); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) write(ctx context.Context, key string, entries []Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	packed, err := compress.Gzip(raw)
	if err != nil {
		return fmt.Errorf("compress %s: %w", key, err)
	}
	opts := vault.PutOptions{ContentType: "application/x-gzip", PublicRead: true}
	if err := b.vault.Put(ctx, key, packed, opts); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// FullIndex lists every indexed version in the scope, ordered by gem name
// ascending, then version precedence ascending, then build time ascending.
func FullIndex(d *db.Data, subdomain string) []Entry {
	type row struct {
		gem *db.Gem
		v   *db.Version
	}
	var rows []row
	for _, g := range scopedGems(d, subdomain) {
		for _, v := range g.Versions {
			if v.Indexed {
				rows = append(rows, row{g, v})
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].gem.Name != rows[j].gem.Name {
			return rows[i].gem.Name < rows[j].gem.Name
		}
		if c := db.CompareVersions(rows[i].v.Number, rows[j].v.Number); c != 0 {
			return c < 0
		}
		return rows[i].v.BuiltAt.Before(rows[j].v.BuiltAt)
	})
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{r.gem.Name, r.v.Number, r.v.Platform})
	}
	return entries
}

// LatestIndex lists, for each gem in the scope, its highest-precedence
// non-prerelease version. Gems with only prereleases contribute nothing.
func LatestIndex(d *db.Data, subdomain string) []Entry {
	entries := make([]Entry, 0)
	for _, g := range scopedGems(d, subdomain) {
		var best *db.Version
		for _, v := range g.Versions {
			if v.Prerelease {
				continue
			}
			if best == nil || v.Position < best.Position {
				best = v
			}
		}
		if best != nil {
			entries = append(entries, Entry{g.Name, best.Number, best.Platform})
		}
	}
	sortEntries(entries)
	return entries
}

// PrereleaseIndex lists every prerelease version in the scope, at any
// position.
func PrereleaseIndex(d *db.Data, subdomain string) []Entry {
	entries := make([]Entry, 0)
	for _, g := range scopedGems(d, subdomain) {
		for _, v := range g.Versions {
			if v.Prerelease {
				entries = append(entries, Entry{g.Name, v.Number, v.Platform})
			}
		}
	}
	sortEntries(entries)
	return entries
}

func scopedGems(d *db.Data, subdomain string) []*db.Gem {
	var gems []*db.Gem
	for _, g := range d.Gems {
		if g.Subdomain == subdomain {
			gems = append(gems, g)
		}
	}
	sort.Slice(gems, func(i, j int) bool { return gems[i].Name < gems[j].Name })
	return gems
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i][0] != entries[j][0] {
			return entries[i][0] < entries[j][0]
		}
		return db.CompareVersions(entries[i][1], entries[j][1]) < 0
	})
}
