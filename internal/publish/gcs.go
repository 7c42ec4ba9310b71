// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package publish uploads reports and archives to places where others
// can see them: a Google Cloud Storage bucket, or a perfdata server.
package publish

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// A Bucket uploads files to a GCS bucket under a common prefix.
type Bucket struct {
	client *storage.Client
	Name   string
	// Prefix is prepended to every object name. It usually ends in
	// a slash.
	Prefix string
}

// NewBucket returns a Bucket using a new storage client created with
// opts.
func NewBucket(ctx context.Context, name, prefix string, opts ...option.ClientOption) (*Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("publish: missing bucket name")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Bucket{client: client, Name: name, Prefix: prefix}, nil
}

// Close closes the storage client.
func (b *Bucket) Close() error { return b.client.Close() }

// UploadFile copies the local file at name to the object Prefix+base
// name and returns the object's gs:// URL.
func (b *Bucket) UploadFile(ctx context.Context, name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	object := b.Prefix + filepath.Base(name)
	return b.upload(ctx, object, f, mime.TypeByExtension(path.Ext(name)))
}

func (b *Bucket) upload(ctx context.Context, object string, r io.Reader, contentType string) (string, error) {
	w := b.client.Bucket(b.Name).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	// Reports are small; send each in a single request.
	w.ChunkSize = 0
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("uploading %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("uploading %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", b.Name, object), nil
}

// UploadDir uploads every regular file directly in dir, in name order.
func (b *Bucket) UploadDir(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var urls []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		url, err := b.UploadFile(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			return urls, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}
