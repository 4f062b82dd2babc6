// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the object-store vault. Endpoint is a URL
// ("https://s3.example.com"); the scheme decides TLS.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// S3 implements Vault on an S3-compatible object store via minio-go. The
// store's own write atomicity covers Put; RedirectURL points clients at
// the bucket's public URL for direct delivery of public-read objects.
type S3 struct {
	client  *minio.Client
	cfg     S3Config
	baseURL string
}

var _ Vault = (*S3)(nil)

// NewS3 creates an object-store vault and ensures its bucket exists.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 vault: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 vault: bucket is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("s3 vault: invalid endpoint: %w", err)
	}
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: u.Scheme == "https",
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 vault: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3 vault: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("s3 vault: create bucket: %w", err)
		}
	}

	return &S3{
		client:  client,
		cfg:     cfg,
		baseURL: fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, cfg.Bucket),
	}, nil
}

func (s *S3) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	putOpts := minio.PutObjectOptions{ContentType: opts.ContentType}
	if putOpts.ContentType == "" {
		putOpts.ContentType = "application/octet-stream"
	}
	if opts.PublicRead {
		putOpts.UserMetadata = map[string]string{"x-amz-acl": "public-read"}
	}
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), putOpts)
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrWrite, key, err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key string, cond Conditional) (*Object, error) {
	st, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, classify(key, err)
	}
	if NotModified(cond, st.ETag, st.LastModified) {
		return nil, ErrNotModified
	}

	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(key, err)
	}

	return &Object{
		Body:         data,
		ETag:         st.ETag,
		LastModified: st.LastModified.UTC(),
		ContentType:  st.ContentType,
	}, nil
}

func (s *S3) Exists(ctx context.Context, key string) bool {
	_, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	return err == nil
}

// RedirectURL returns the object's public bucket URL.
func (s *S3) RedirectURL(key string) (string, bool) {
	return s.baseURL + "/" + key, true
}

func classify(key string, err error) error {
	if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", key, err)
}
