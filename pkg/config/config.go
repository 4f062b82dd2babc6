// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the gemcutter server configuration from a TOML
// file, filling defaults for anything unset.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/ddollar/gemcutter/pkg/vault"
)

// DefaultFile is where Load looks when no path is given.
const DefaultFile = "gemcutter.toml"

// Backend names for Config.Backend.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `toml:"listen,omitempty"`

	// DataDir holds the metadata store and, for the fs backend, the
	// gem artifacts.
	DataDir string `toml:"data_dir,omitempty"`

	// Backend selects artifact storage: "fs" or "s3".
	Backend string `toml:"backend,omitempty"`

	// Redirect answers gem fetches with a redirect to the backend's
	// public URL instead of streaming, when the backend supports it.
	Redirect bool `toml:"redirect,omitempty"`

	// Workers sizes the background job pool.
	Workers int `toml:"workers,omitempty"`

	S3 S3 `toml:"s3,omitempty"`
}

// S3 configures the s3 backend. Endpoint is a full URL; the scheme
// selects TLS.
type S3 struct {
	Endpoint  string `toml:"endpoint,omitempty"`
	Bucket    string `toml:"bucket,omitempty"`
	AccessKey string `toml:"access_key,omitempty"`
	SecretKey string `toml:"secret_key,omitempty"`
	Region    string `toml:"region,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Listen:  ":8080",
		DataDir: "data",
		Backend: BackendFS,
		Workers: 2,
	}
}

// Load reads the configuration at path. A missing file yields Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendFS:
	case BackendS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return errors.New("s3 backend requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	return nil
}

// S3Config converts the file form to the vault's constructor form.
func (c *Config) S3Config() vault.S3Config {
	return vault.S3Config{
		Endpoint:  c.S3.Endpoint,
		Bucket:    c.S3.Bucket,
		AccessKey: c.S3.AccessKey,
		SecretKey: c.S3.SecretKey,
		Region:    c.S3.Region,
	}
}
