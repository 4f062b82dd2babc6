// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gemspec

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

// Write assembles a gem archive from a spec and an opaque payload. The
// payload lands in data.tar.gz verbatim; callers that have no payload may
// pass nil. Used by tooling and tests to produce uploads the registry
// accepts.
func Write(w io.Writer, spec *Spec, payload []byte) error {
	meta, err := compressMetadata(spec)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)
	now := time.Now()
	entries := []struct {
		name string
		data []byte
	}{
		{metadataEntry, meta},
		{"data.tar.gz", payload},
	}
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    0644,
			Size:    int64(len(e.data)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write %s header: %w", e.name, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	return tw.Close()
}

func compressMetadata(spec *Spec) ([]byte, error) {
	raw, err := yaml.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("compress metadata: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress metadata: %w", err)
	}
	return buf.Bytes(), nil
}
