// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package db

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/ddollar/gemcutter/pkg/gemspec"
)

// versionPattern is the accepted version grammar: dotted numerics with an
// optional prerelease and build suffix. Matching the pattern is necessary
// but not sufficient; the number must also parse as a version.
var versionPattern = regexp.MustCompile(`^v?\d+(\.\d+){0,2}(-[0-9A-Za-z]+(\.[0-9A-Za-z-]+)*)?(\+[0-9A-Za-z.-]+)?$`)

// ParseVersion validates and parses a version number. Errors wrap
// ErrVersionFormat.
func ParseVersion(number string) (*semver.Version, error) {
	if !versionPattern.MatchString(number) {
		return nil, fmt.Errorf("%w: %q", ErrVersionFormat, number)
	}
	v, err := semver.NewVersion(number)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrVersionFormat, number, err)
	}
	return v, nil
}

// FindOrCreateGem resolves a gem identity, creating the record on first
// use. The boolean reports whether the gem was created by this call.
func (d *Data) FindOrCreateGem(name, subdomain string) (*Gem, bool) {
	key := GemKey(subdomain, name)
	if g, ok := d.Gems[key]; ok {
		return g, false
	}
	g := &Gem{Name: name, Subdomain: subdomain}
	if d.Gems == nil {
		d.Gems = make(map[string]*Gem)
	}
	d.Gems[key] = g
	return g, true
}

// FindOrCreateVersion looks up a version by number and platform, creating
// a pending record (no position, not indexed) if absent. The boolean
// reports whether the version is new to this publish.
func (g *Gem) FindOrCreateVersion(number, platform string) (*Version, bool) {
	if v := g.FindVersion(number, platform); v != nil {
		return v, false
	}
	v := &Version{
		Number:    number,
		Platform:  platform,
		CreatedAt: time.Now().UTC(),
	}
	g.Versions = append(g.Versions, v)
	return v, true
}

// ApplyManifest writes the manifest-derived fields of a version and
// recomputes the position of every sibling. It runs inside a MutateData
// transaction: any error rolls the whole publish back.
//
// Re-publishing an existing (number, platform) pair fails with
// ErrDuplicateVersion; the version row count never changes on failure.
func (d *Data) ApplyManifest(g *Gem, v *Version, isNew bool, spec *gemspec.Spec) error {
	parsed, err := ParseVersion(v.Number)
	if err != nil {
		return err
	}
	if !isNew {
		return fmt.Errorf("%w: %s %s", ErrDuplicateVersion, g.Name, v.Slug())
	}

	v.Authors = strings.Join(spec.Authors, ", ")
	v.Description = spec.Description
	v.Summary = spec.Summary
	v.BuiltAt = spec.Date
	if v.BuiltAt.IsZero() {
		v.BuiltAt = time.Now().UTC()
	}
	v.Prerelease = parsed.Prerelease() != ""
	v.Indexed = false
	v.Dependencies = nil
	for _, dep := range spec.Dependencies {
		v.Dependencies = append(v.Dependencies, Dependency{
			Gem:          dep.Gem,
			Requirements: dep.Requirements,
			Scope:        dep.Scope,
		})
	}

	g.reorderVersions()
	return nil
}

// reorderVersions assigns dense zero-based positions to all versions of
// the gem, ordered by descending version precedence. Platform is not a
// sort key: versions with equal numbers keep their relative order.
func (g *Gem) reorderVersions() {
	sort.SliceStable(g.Versions, func(i, j int) bool {
		return CompareVersions(g.Versions[i].Number, g.Versions[j].Number) > 0
	})
	for i, v := range g.Versions {
		v.Position = i
	}
}

// CompareVersions orders two version numbers by precedence: numeric
// segments compare numerically, and a prerelease sorts before the release
// with the same numeric prefix. Unparseable numbers sort last.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

// ResolveSubdomain maps a request origin name to a subdomain scope. The
// reserved name and the empty name resolve to the default scope (nil).
// Anything else is find-or-create; the requesting login becomes the first
// member of a memberless subdomain.
func (d *Data) ResolveSubdomain(name, login string) *Subdomain {
	if name == "" || name == ReservedSubdomain {
		return nil
	}
	sub, ok := d.Subdomains[name]
	if !ok {
		sub = &Subdomain{Name: name}
		if d.Subdomains == nil {
			d.Subdomains = make(map[string]*Subdomain)
		}
		d.Subdomains[name] = sub
	}
	if len(sub.Members) == 0 && login != "" {
		sub.Members = append(sub.Members, login)
	}
	return sub
}

// FindBySlug locates a gem and version within a subdomain scope from a
// path slug of the form name-version[-platform]. Gem names may themselves
// contain dashes, so the match is done against known gems rather than by
// splitting the slug.
func (d *Data) FindBySlug(subdomain, slug string) (*Gem, *Version) {
	for _, g := range d.Gems {
		if g.Subdomain != subdomain {
			continue
		}
		rest, ok := strings.CutPrefix(slug, g.Name+"-")
		if !ok {
			continue
		}
		for _, v := range g.Versions {
			if v.Slug() == rest {
				return g, v
			}
		}
	}
	return nil, nil
}
