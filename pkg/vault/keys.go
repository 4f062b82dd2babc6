// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vault

import "path"

// FormatTag names the serialization format of derived artifacts and is
// embedded in their keys, so a future format change gets fresh keys.
const FormatTag = "json"

// Key builds a namespace-qualified storage key. An empty subdomain is the
// default scope and adds no prefix.
func Key(subdomain string, parts ...string) string {
	if subdomain == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{subdomain}, parts...)...)
}

// GemKey is the storage key of a raw gem blob.
func GemKey(subdomain, originalName string) string {
	return Key(subdomain, "gems", originalName+".gem")
}

// QuickSpecKey is the storage key of a deflated abbreviated spec blob.
func QuickSpecKey(subdomain, originalName string) string {
	return Key(subdomain, "quick", FormatTag, originalName+".gemspec.rz")
}

// FullIndexKey is the storage key of the full index artifact.
func FullIndexKey(subdomain string) string {
	return Key(subdomain, "specs."+FormatTag+".gz")
}

// LatestIndexKey is the storage key of the latest-release index artifact.
func LatestIndexKey(subdomain string) string {
	return Key(subdomain, "latest_specs."+FormatTag+".gz")
}

// PrereleaseIndexKey is the storage key of the prerelease index artifact.
func PrereleaseIndexKey(subdomain string) string {
	return Key(subdomain, "prerelease_specs."+FormatTag+".gz")
}
