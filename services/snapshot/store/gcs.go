// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// GCSConfig configures NewGCSStore.
type GCSConfig struct {
	Bucket string
	Prefix string

	// CredentialsFile is a service account key. Empty uses Application
	// Default Credentials.
	CredentialsFile string

	Logger *slog.Logger
}

// GCSStore keeps snapshots as gs://<bucket>/<prefix>/snap_<label>.json.
//
// Thread Safety: Safe for concurrent use.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewGCSStore creates a GCS-backed store.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

// ObjectPath returns the object name used for label.
func (g *GCSStore) ObjectPath(label string) string {
	return gcsObjectPath(g.prefix, label)
}

func gcsObjectPath(prefix, label string) string {
	if prefix == "" {
		return objectName(label)
	}
	return path.Join(prefix, objectName(label))
}

func gcsListPrefix(prefix string) string {
	if prefix == "" {
		return "snap_"
	}
	return path.Join(prefix, "snap_")
}

// Get implements Store.
func (g *GCSStore) Get(ctx context.Context, label string) (*snapshot.Snapshot, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	reader, err := g.client.Bucket(g.bucket).Object(g.ObjectPath(label)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrSnapshotNotFound, g.bucket, g.ObjectPath(label))
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", g.bucket, g.ObjectPath(label), err)
	}
	defer reader.Close()
	return snapshot.Decode(reader)
}

// Put implements Store.
func (g *GCSStore) Put(ctx context.Context, label string, s *snapshot.Snapshot) error {
	if err := ValidateLabel(label); err != nil {
		return err
	}
	name := g.ObjectPath(label)
	writer := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if err := snapshot.Encode(writer, s); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write GCS object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}
	g.logger.Info("snapshot uploaded",
		slog.String("label", label),
		slog.String("object", fmt.Sprintf("gs://%s/%s", g.bucket, name)))
	return nil
}

// List implements Store.
func (g *GCSStore) List(ctx context.Context) ([]string, error) {
	query := &storage.Query{Prefix: gcsListPrefix(g.prefix)}
	it := g.client.Bucket(g.bucket).Objects(ctx, query)

	labels := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s: %w", g.bucket, err)
		}
		if label, ok := labelFromObject(path.Base(attrs.Name)); ok {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// Delete implements Store.
func (g *GCSStore) Delete(ctx context.Context, label string) error {
	if err := ValidateLabel(label); err != nil {
		return err
	}
	err := g.client.Bucket(g.bucket).Object(g.ObjectPath(label)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrSnapshotNotFound
	}
	return err
}

// Close implements Store.
func (g *GCSStore) Close() error {
	return g.client.Close()
}
