// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package db is the authoritative gem metadata store: gems, their ordered
// versions, dependencies, ownership, subdomains, and users, persisted as a
// single JSON file.
//
// All mutation goes through Store.MutateData, which applies a callback to a
// deep copy of the data and persists the result atomically only when the
// callback succeeds. A callback error leaves the store byte-for-byte
// unchanged, which is what gives publishes their all-or-nothing commit.
package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrVersionFormat indicates a version number that does not match the
	// accepted version grammar.
	ErrVersionFormat = errors.New("invalid version format")
	// ErrDuplicateVersion indicates a version that already exists for the
	// gem with the same number and platform.
	ErrDuplicateVersion = errors.New("version already exists with this number and platform")
	// ErrNotFound indicates a missing gem, version, or user.
	ErrNotFound = errors.New("not found")
)

// Store is a JSON file-backed gem metadata store.
type Store struct {
	file string

	mu sync.Mutex // protects the following
	d  *Data
}

// NewStore returns a new Store backed by the given file. The file is
// created lazily on first use.
func NewStore(file string) *Store {
	return &Store{file: file}
}

// Snapshot returns a deep copy of the current data for readers. Mutating
// the copy has no effect on the store.
func (s *Store) Snapshot() (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getLocked()
	if err != nil {
		return nil, err
	}
	return clone(d)
}

func (s *Store) getLocked() (*Data, error) {
	if s.d == nil {
		created, err := s.readLocked()
		if err != nil {
			return nil, err
		}
		if created {
			s.d.DataVersion = CurrentDataVersion
		} else if err := migrate(s.d); err != nil {
			return nil, fmt.Errorf("migrating data: %v", err)
		}
	}
	return s.d, nil
}

// readLocked reads s.file into s.d.
func (s *Store) readLocked() (created bool, err error) {
	f, err := os.Open(s.file)
	if os.IsNotExist(err) {
		s.d = new(Data)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	jd := json.NewDecoder(f)
	d := new(Data)
	if err := jd.Decode(&d); err != nil {
		return false, err
	}
	s.d = d
	return false, nil
}

// saveLocked saves s.d to s.file.
func (s *Store) saveLocked() error {
	if s.d == nil {
		return nil
	}
	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "gemcutter.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	jc := json.NewEncoder(tmp)
	jc.SetIndent("", "  ")
	if err := jc.Encode(s.d); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.file)
}

func clone(d *Data) (*Data, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("clone data: %w", err)
	}
	out := new(Data)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("clone data: %w", err)
	}
	return out, nil
}

// MutateData applies f to a copy of the data and persists the result. If f
// returns an error, nothing is saved and the error is returned unchanged,
// so callers can match it. Mutations are serialized by the store's lock;
// concurrent publishes of the same gem never interleave.
func (s *Store) MutateData(f func(*Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.getLocked()
	if err != nil {
		return fmt.Errorf("get data: %w", err)
	}
	d, err := clone(cur)
	if err != nil {
		return err
	}
	if err := f(d); err != nil {
		return err
	}
	s.d = d
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("save data: %w", err)
	}
	return nil
}

// UserByKey resolves an API key to its user.
func (s *Store) UserByKey(key string) (*User, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	d, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	for _, u := range d.Users {
		if u.APIKey == key {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

// AddUser registers a user with a freshly generated API key and returns it.
func (s *Store) AddUser(login string, importer bool) (*User, error) {
	u := &User{
		Login:     login,
		APIKey:    uuid.NewString(),
		Importer:  importer,
		CreatedAt: time.Now().UTC(),
	}
	err := s.MutateData(func(d *Data) error {
		if _, ok := d.Users[login]; ok {
			return fmt.Errorf("user %q already exists", login)
		}
		if d.Users == nil {
			d.Users = make(map[string]*User)
		}
		d.Users[login] = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetIndexed flips the indexed flag on one version. The publish pipeline
// calls it only after the vault has confirmed the gem blob write.
func (s *Store) SetIndexed(subdomain, name, number, platform string, indexed bool) error {
	return s.MutateData(func(d *Data) error {
		gem, ok := d.Gems[GemKey(subdomain, name)]
		if !ok {
			return fmt.Errorf("gem %s: %w", GemKey(subdomain, name), ErrNotFound)
		}
		v := gem.FindVersion(number, platform)
		if v == nil {
			return fmt.Errorf("version %s-%s: %w", number, platform, ErrNotFound)
		}
		v.Indexed = indexed
		return nil
	})
}

// IncrementDownloads records one download of the version named by slug
// within the subdomain scope.
func (s *Store) IncrementDownloads(subdomain, slug string) error {
	return s.MutateData(func(d *Data) error {
		gem, v := d.FindBySlug(subdomain, slug)
		if v == nil {
			return fmt.Errorf("slug %q: %w", slug, ErrNotFound)
		}
		gem.Downloads++
		v.Downloads++
		return nil
	})
}
