// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package db

import (
	"fmt"
	"slices"
	"time"
)

// ReservedSubdomain is the hostname label that maps to the default,
// unscoped gem namespace. It never names a Subdomain record.
const ReservedSubdomain = "gemcutter"

// Data is the full JSON structure of the database.
type Data struct {
	// DataVersion is the version of the data format. This is used to
	// determine how to parse the data.
	DataVersion int `json:",omitempty"`

	// Gems is keyed by GemKey(subdomain, name).
	Gems map[string]*Gem

	// Subdomains is keyed by subdomain name.
	Subdomains map[string]*Subdomain

	// Users is keyed by login.
	Users map[string]*User
}

// GemKey is the unique identity of a gem: its name qualified by the
// subdomain scope it was published under. An empty subdomain is the
// default scope.
func GemKey(subdomain, name string) string {
	if subdomain == "" {
		return name
	}
	return subdomain + "/" + name
}

// Gem is one logical package. Versions are kept ordered by Position.
type Gem struct {
	Name      string
	Subdomain string `json:",omitempty"`

	// Downloads counts fetches of any version of this gem.
	Downloads int64 `json:",omitempty"`

	// Owners are the logins allowed to push new versions.
	Owners []string `json:",omitempty"`

	Versions []*Version
}

// Key returns the gem's identity key within Data.Gems.
func (g *Gem) Key() string {
	return GemKey(g.Subdomain, g.Name)
}

// OwnedBy reports whether login is an owner of the gem.
func (g *Gem) OwnedBy(login string) bool {
	return slices.Contains(g.Owners, login)
}

// AddOwner records login as an owner, once.
func (g *Gem) AddOwner(login string) {
	if !g.OwnedBy(login) {
		g.Owners = append(g.Owners, login)
	}
}

// Pushable reports whether the gem is open for push by any authenticated
// user. A gem that has never had a version pushed is not claimed yet, so
// anybody may publish the first version and become its owner.
func (g *Gem) Pushable() bool {
	return len(g.Versions) == 0
}

// FindVersion returns the version with the given number and platform.
func (g *Gem) FindVersion(number, platform string) *Version {
	for _, v := range g.Versions {
		if v.Number == number && v.Platform == platform {
			return v
		}
	}
	return nil
}

// Latest returns the version at position 0 (highest precedence), or nil.
func (g *Gem) Latest() *Version {
	for _, v := range g.Versions {
		if v.Position == 0 {
			return v
		}
	}
	return nil
}

// Version is one published version of a gem.
type Version struct {
	Number   string
	Platform string

	// Position is the dense zero-based rank among the gem's versions,
	// ordered by descending version precedence. Position 0 is newest.
	Position int

	// Prerelease is derived from the version number on every manifest
	// apply, never set directly.
	Prerelease bool `json:",omitempty"`

	// Indexed becomes true only after the gem blob write is confirmed;
	// only indexed versions appear in the full index.
	Indexed bool `json:",omitempty"`

	Authors     string    `json:",omitempty"`
	Description string    `json:",omitempty"`
	Summary     string    `json:",omitempty"`
	BuiltAt     time.Time `json:",omitempty"`
	CreatedAt   time.Time `json:",omitempty"`
	Downloads   int64     `json:",omitempty"`

	Dependencies []Dependency `json:",omitempty"`
}

// Dependency is an immutable requirement of a version on another gem.
type Dependency struct {
	Gem          string
	Requirements string
	Scope        string // runtime or development
}

// Platformed reports whether the version targets a non-default platform.
func (v *Version) Platformed() bool {
	return v.Platform != "ruby"
}

// Slug is the version's path component: number, with the platform appended
// for platformed versions.
func (v *Version) Slug() string {
	if v.Platformed() {
		return v.Number + "-" + v.Platform
	}
	return v.Number
}

// Info returns the most useful prose available for the version.
func (v *Version) Info() string {
	switch {
	case v.Description != "":
		return v.Description
	case v.Summary != "":
		return v.Summary
	default:
		return "This gem does not have a description or summary."
	}
}

// Title renders the version for human-readable messages, e.g. "mylib (1.0.0)".
func Title(g *Gem, v *Version) string {
	return fmt.Sprintf("%s (%s)", g.Name, v.Number)
}

// Subdomain is a tenant-like partition of the gem space, derived from the
// request origin hostname.
type Subdomain struct {
	Name    string
	Members []string `json:",omitempty"`
}

// BelongsTo reports whether login is a member of the subdomain.
func (s *Subdomain) BelongsTo(login string) bool {
	return slices.Contains(s.Members, login)
}

// User is a registered account identified by its API key.
type User struct {
	Login  string
	APIKey string

	// Importer marks the trusted bulk importer, which may create new
	// versions of gems it does not own.
	Importer bool `json:",omitempty"`

	CreatedAt time.Time `json:",omitempty"`
}
