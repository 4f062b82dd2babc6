// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vault

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestFSPutGet(t *testing.T) {
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()
	data := []byte("gem bytes")

	if err := v.Put(ctx, "acme/gems/mylib-1.0.0.gem", data, PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !v.Exists(ctx, "acme/gems/mylib-1.0.0.gem") {
		t.Error("Exists = false after Put")
	}

	obj, err := v.Get(ctx, "acme/gems/mylib-1.0.0.gem", Conditional{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(obj.Body, data) {
		t.Errorf("Body = %q, want %q", obj.Body, data)
	}
	if obj.ETag == "" {
		t.Error("Get returned no ETag")
	}
	if obj.LastModified.IsZero() {
		t.Error("Get returned no LastModified")
	}
}

func TestFSGetNotFound(t *testing.T) {
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if _, err := v.Get(context.Background(), "missing.gem", Conditional{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if v.Exists(context.Background(), "missing.gem") {
		t.Error("Exists = true for missing key")
	}
}

func TestFSConditionalGet(t *testing.T) {
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()
	if err := v.Put(ctx, "specs.json.gz", []byte("index"), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	obj, err := v.Get(ctx, "specs.json.gz", Conditional{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Matching entity tag: not modified.
	_, err = v.Get(ctx, "specs.json.gz", Conditional{IfNoneMatch: []string{obj.ETag}})
	if !errors.Is(err, ErrNotModified) {
		t.Errorf("Get with matching ETag = %v, want ErrNotModified", err)
	}

	// Wildcard matches anything stored.
	_, err = v.Get(ctx, "specs.json.gz", Conditional{IfNoneMatch: []string{"*"}})
	if !errors.Is(err, ErrNotModified) {
		t.Errorf("Get with wildcard = %v, want ErrNotModified", err)
	}

	// Non-matching tag: full object.
	got, err := v.Get(ctx, "specs.json.gz", Conditional{IfNoneMatch: []string{"deadbeef"}})
	if err != nil {
		t.Fatalf("Get with stale ETag: %v", err)
	}
	if got.ETag != obj.ETag {
		t.Errorf("ETag = %q, want %q", got.ETag, obj.ETag)
	}

	// If-Modified-Since after the write: not modified.
	_, err = v.Get(ctx, "specs.json.gz", Conditional{IfModifiedSince: obj.LastModified.Add(time.Minute)})
	if !errors.Is(err, ErrNotModified) {
		t.Errorf("Get with later If-Modified-Since = %v, want ErrNotModified", err)
	}

	// If-Modified-Since before the write: full object.
	if _, err := v.Get(ctx, "specs.json.gz", Conditional{IfModifiedSince: obj.LastModified.Add(-time.Hour)}); err != nil {
		t.Errorf("Get with earlier If-Modified-Since = %v, want object", err)
	}
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := v.Put(context.Background(), "../outside", []byte("x"), PutOptions{}); !errors.Is(err, ErrWrite) {
		t.Errorf("Put escaping key = %v, want ErrWrite", err)
	}
}

func TestFSNeverRedirects(t *testing.T) {
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if url, ok := v.RedirectURL("gems/mylib-1.0.0.gem"); ok {
		t.Errorf("RedirectURL = %q, want none", url)
	}
}

func TestNotModified(t *testing.T) {
	mod := time.Date(2009, 7, 22, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		cond Conditional
		want bool
	}{
		{"no validators", Conditional{}, false},
		{"etag match", Conditional{IfNoneMatch: []string{"abc"}}, true},
		{"etag match quoted", Conditional{IfNoneMatch: []string{`"abc"`}}, true},
		{"etag mismatch", Conditional{IfNoneMatch: []string{"xyz"}}, false},
		{"wildcard", Conditional{IfNoneMatch: []string{"*"}}, true},
		{"etag mismatch wins over time", Conditional{IfNoneMatch: []string{"xyz"}, IfModifiedSince: mod.Add(time.Hour)}, false},
		{"since equal", Conditional{IfModifiedSince: mod}, true},
		{"since later", Conditional{IfModifiedSince: mod.Add(time.Hour)}, true},
		{"since earlier", Conditional{IfModifiedSince: mod.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NotModified(tt.cond, "abc", mod); got != tt.want {
				t.Errorf("NotModified = %v, want %v", got, tt.want)
			}
		})
	}
}
