// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gemspec extracts the specification from an uploaded gem archive.
//
// A gem is a tar stream containing a metadata.gz entry (a gzip-compressed
// YAML specification) and a data.tar.gz payload. The registry only reads
// the specification; the payload stays opaque and is stored verbatim.
package gemspec

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

// ErrFormat indicates the upload is not a well-formed gem archive. It is a
// client error; callers should not retry without rebuilding the gem.
var ErrFormat = errors.New("invalid gem format")

// DefaultPlatform is the platform tag for gems with no native component.
const DefaultPlatform = "ruby"

// Dependency scopes as they appear in the gem specification.
const (
	ScopeRuntime     = "runtime"
	ScopeDevelopment = "development"
)

// Dependency is a single requirement of a gem on another gem.
type Dependency struct {
	Gem          string `yaml:"name" json:"name"`
	Requirements string `yaml:"requirements" json:"requirements"`
	Scope        string `yaml:"scope" json:"scope"`
}

// Spec is the structured manifest of one gem version.
type Spec struct {
	Name         string       `yaml:"name" json:"name"`
	Version      string       `yaml:"version" json:"version"`
	Platform     string       `yaml:"platform" json:"platform"`
	Authors      []string     `yaml:"authors" json:"authors,omitempty"`
	Summary      string       `yaml:"summary" json:"summary,omitempty"`
	Description  string       `yaml:"description" json:"description,omitempty"`
	Date         time.Time    `yaml:"date" json:"date"`
	Dependencies []Dependency `yaml:"dependencies" json:"dependencies,omitempty"`
}

const metadataEntry = "metadata.gz"

// Parse reads a gem archive and returns its specification.
//
// Parse is a pure transform: it never mutates anything and converts every
// structural failure (truncated tar, missing or corrupt metadata, invalid
// YAML, missing identity fields) into an error wrapping ErrFormat that
// carries the underlying diagnostic.
func Parse(r io.Reader) (*Spec, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no %s entry in archive", ErrFormat, metadataEntry)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading archive: %v", ErrFormat, err)
		}
		if hdr.Name != metadataEntry {
			continue
		}
		return parseMetadata(tr)
	}
}

func parseMetadata(r io.Reader) (*Spec, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing metadata: %v", ErrFormat, err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: reading metadata: %v", ErrFormat, err)
	}

	var spec Spec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("%w: parsing metadata: %v", ErrFormat, err)
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: metadata has no gem name", ErrFormat)
	}
	if spec.Version == "" {
		return nil, fmt.Errorf("%w: metadata has no version", ErrFormat)
	}
	if spec.Platform == "" {
		spec.Platform = DefaultPlatform
	}
	for i := range spec.Dependencies {
		if spec.Dependencies[i].Scope == "" {
			spec.Dependencies[i].Scope = ScopeRuntime
		}
	}
	return &spec, nil
}

// Platformed reports whether the gem targets a non-default platform.
func (s *Spec) Platformed() bool {
	return s.Platform != DefaultPlatform
}

// OriginalName is the slug the gem was built under: name-version, with the
// platform appended for platformed gems. Blob keys derive from it.
func (s *Spec) OriginalName() string {
	if s.Platformed() {
		return fmt.Sprintf("%s-%s-%s", s.Name, s.Version, s.Platform)
	}
	return fmt.Sprintf("%s-%s", s.Name, s.Version)
}

// maxAbbreviatedLen caps free-text fields in the quick spec blob so clients
// resolving dependencies do not pull megabytes of prose.
const maxAbbreviatedLen = 512

// Abbreviated returns a copy of the spec with free-text fields sanitized and
// truncated, suitable for the quick spec blob served to resolver clients.
func (s *Spec) Abbreviated() *Spec {
	abbr := *s
	abbr.Description = sanitize(abbr.Description)
	abbr.Summary = sanitize(abbr.Summary)
	if len(abbr.Description) > maxAbbreviatedLen {
		// Back up to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := maxAbbreviatedLen
		for cut > 0 && !utf8.RuneStart(abbr.Description[cut]) {
			cut--
		}
		abbr.Description = abbr.Description[:cut]
	}
	deps := make([]Dependency, len(s.Dependencies))
	copy(deps, s.Dependencies)
	abbr.Dependencies = deps
	return &abbr
}

// sanitize drops control bytes that have no business in spec prose.
func sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}
