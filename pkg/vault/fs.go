// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Vault on a rooted directory. The final path is written
// directly: publish is the sole writer for any given key at a time, so a
// reader never observes a torn artifact in practice. FS never redirects.
type FS struct {
	rootDir string
}

var _ Vault = (*FS)(nil)

// NewFS creates a filesystem vault rooted at rootDir.
func NewFS(rootDir string) (*FS, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}
	return &FS{rootDir: rootDir}, nil
}

// keyPath maps a slash-separated key onto the rooted directory, refusing
// keys that would escape it.
func (f *FS) keyPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(f.rootDir, clean), nil
}

func (f *FS) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	path, err := f.keyPath(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create key directory: %v", ErrWrite, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrWrite, key, err)
	}
	return nil
}

func (f *FS) Get(ctx context.Context, key string, cond Conditional) (*Object, error) {
	path, err := f.keyPath(key)
	if err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	sum := sha256.Sum256(data)
	etag := hex.EncodeToString(sum[:])
	modified := st.ModTime().UTC()
	if NotModified(cond, etag, modified) {
		return nil, ErrNotModified
	}
	return &Object{
		Body:         data,
		ETag:         etag,
		LastModified: modified,
	}, nil
}

func (f *FS) Exists(ctx context.Context, key string) bool {
	path, err := f.keyPath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// RedirectURL always reports false: filesystem content has no location a
// client could fetch directly.
func (f *FS) RedirectURL(key string) (string, bool) {
	return "", false
}
