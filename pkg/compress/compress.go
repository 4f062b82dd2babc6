// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compress provides the compression codecs used for registry
// artifacts (gzip for index files, zlib for quick spec blobs) and
// transparent decompression of uploaded request bodies.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Gzip compresses data with gzip. Index artifacts are stored in this form.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Gunzip reverses Gzip.
func Gunzip(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()
	out, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return out, nil
}

// Deflate compresses data with zlib. Quick spec blobs (.rz) are stored in
// this form.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

// Inflate reverses Deflate.
func Inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

// DecompressRequest wraps the request body with a decompressing reader
// if the Content-Encoding header is set.
func DecompressRequest(r *http.Request) error {
	contentEncoding := r.Header.Get("Content-Encoding")
	if contentEncoding == "" {
		return nil
	}

	var reader io.ReadCloser
	var err error

	switch contentEncoding {
	case "gzip":
		reader, err = gzip.NewReader(r.Body)
	case "deflate":
		reader = flate.NewReader(r.Body)
	case "zstd":
		var zr *zstd.Decoder
		zr, err = zstd.NewReader(r.Body)
		if err == nil {
			reader = io.NopCloser(zr.IOReadCloser())
		}
	case "identity":
		// No decompression needed
		return nil
	default:
		// Unsupported encoding - leave body as is
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to create decompressor for %s: %w", contentEncoding, err)
	}

	// Wrap in a ReadCloser that closes both the decompressor and original body
	oldBody := r.Body
	r.Body = &closeWrapper{
		ReadCloser: reader,
		onClose:    oldBody.Close,
	}

	// Remove Content-Encoding header since we've decompressed
	r.Header.Del("Content-Encoding")
	// Remove Content-Length since decompressed size differs
	r.Header.Del("Content-Length")

	return nil
}

// closeWrapper wraps an io.ReadCloser and calls an additional function on Close.
type closeWrapper struct {
	io.ReadCloser
	onClose func() error
}

func (cw *closeWrapper) Close() error {
	err1 := cw.ReadCloser.Close()
	err2 := cw.onClose()
	return errors.Join(err1, err2)
}
