// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compress

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"
)

func TestGzipRoundTrip(t *testing.T) {
	in := []byte(`[["mylib","1.0.0","ruby"]]`)
	packed, err := Gzip(in)
	if err != nil {
		t.Fatalf("Gzip: %v", err)
	}
	out, err := Gunzip(packed)
	if err != nil {
		t.Fatalf("Gunzip: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("round trip = %q, want %q", out, in)
	}
}

func TestDeflateRoundTrip(t *testing.T) {
	in := []byte(`{"name":"mylib","version":"1.0.0"}`)
	packed, err := Deflate(in)
	if err != nil {
		t.Fatalf("Deflate: %v", err)
	}
	out, err := Inflate(packed)
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("round trip = %q, want %q", out, in)
	}
}

func TestGunzipRejectsGarbage(t *testing.T) {
	if _, err := Gunzip([]byte("not gzip")); err == nil {
		t.Fatal("Gunzip accepted garbage")
	}
	if _, err := Inflate([]byte("not zlib")); err == nil {
		t.Fatal("Inflate accepted garbage")
	}
}

func TestDecompressRequestGzip(t *testing.T) {
	body := []byte("uploaded gem bytes")
	packed, err := Gzip(body)
	if err != nil {
		t.Fatalf("Gzip: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/v1/gems", bytes.NewReader(packed))
	req.Header.Set("Content-Encoding", "gzip")

	if err := DecompressRequest(req); err != nil {
		t.Fatalf("DecompressRequest: %v", err)
	}
	got, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("body = %q, want %q", got, body)
	}
	if enc := req.Header.Get("Content-Encoding"); enc != "" {
		t.Errorf("Content-Encoding = %q, want removed", enc)
	}
}

func TestDecompressRequestIdentity(t *testing.T) {
	body := []byte("raw bytes")
	req := httptest.NewRequest("POST", "/api/v1/gems", bytes.NewReader(body))

	if err := DecompressRequest(req); err != nil {
		t.Fatalf("DecompressRequest: %v", err)
	}
	got, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("body = %q, want untouched", got)
	}
}
