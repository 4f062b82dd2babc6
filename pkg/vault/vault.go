// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vault provides durable blob storage for gem artifacts behind a
// uniform contract with two implementations: a rooted filesystem store and
// an S3-compatible object store. The backend is chosen once at process
// start; callers never branch on which one they hold.
package vault

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates no object exists under the key.
	ErrNotFound = errors.New("object not found")
	// ErrNotModified indicates the caller's cached representation is
	// still valid for the given Conditional.
	ErrNotModified = errors.New("object not modified")
	// ErrWrite indicates a durable write failed. It is an infrastructure
	// error; the artifact may be safely re-put.
	ErrWrite = errors.New("storage write failed")
)

// PutOptions carry content hints for a durable write.
type PutOptions struct {
	ContentType string
	PublicRead  bool
}

// Conditional carries the caching validators of a conditional get.
type Conditional struct {
	IfModifiedSince time.Time
	IfNoneMatch     []string
}

// Object is a stored blob plus its caching metadata.
type Object struct {
	Body         []byte
	ETag         string
	LastModified time.Time
	ContentType  string
}

// Vault is the uniform storage contract. Keys are namespace-qualified
// slash-separated paths; implementations create intermediate structure as
// needed.
type Vault interface {
	// Put durably writes data under key. Errors wrap ErrWrite.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	// Get returns the object under key, or ErrNotModified when cond
	// shows the caller's copy is current, or ErrNotFound.
	Get(ctx context.Context, key string, cond Conditional) (*Object, error)
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) bool
	// RedirectURL returns a URL clients can be redirected to for the
	// key, when the backend supports direct delivery.
	RedirectURL(key string) (string, bool)
}

// NotModified evaluates cond against an object's validators. Entity tags
// win over timestamps; the wildcard tag matches any stored object.
func NotModified(cond Conditional, etag string, lastModified time.Time) bool {
	if len(cond.IfNoneMatch) > 0 {
		for _, tag := range cond.IfNoneMatch {
			tag = strings.Trim(strings.TrimSpace(tag), `"`)
			if tag == "*" || tag == strings.Trim(etag, `"`) {
				return true
			}
		}
		return false
	}
	if !cond.IfModifiedSince.IsZero() && !lastModified.IsZero() {
		// HTTP dates have second precision.
		return !lastModified.Truncate(time.Second).After(cond.IfModifiedSince)
	}
	return false
}
