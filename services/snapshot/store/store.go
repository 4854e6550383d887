// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists labelled snapshots.
//
// A label names one recorded run ("main", "v2", "pr-1234"). Backends:
//
//   - memory: process-local, for tests and the HTTP server
//   - file:   <dir>/snap_<label>.json, the default artifacts layout
//   - badger: embedded key-value store for long-lived CI hosts
//   - gcs:    gs://bucket/prefix, for sharing baselines between runners
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrSnapshotNotFound indicates no snapshot is stored under the label.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidLabel indicates a label with characters outside
	// [A-Za-z0-9._-] or an empty label.
	ErrInvalidLabel = errors.New("invalid snapshot label")

	// ErrUnknownBackend indicates an unsupported Config.Backend.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store saves and loads snapshots by label.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Get loads the snapshot for label.
	// Returns ErrSnapshotNotFound if none is stored.
	Get(ctx context.Context, label string) (*snapshot.Snapshot, error)

	// Put stores s under label, replacing any previous snapshot.
	Put(ctx context.Context, label string, s *snapshot.Snapshot) error

	// List returns all labels in sorted order.
	List(ctx context.Context) ([]string, error)

	// Delete removes the snapshot for label.
	// Returns ErrSnapshotNotFound if none is stored.
	Delete(ctx context.Context, label string) error

	// Close releases backend resources.
	Close() error
}

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateLabel checks that label is usable as a file name and object key.
func ValidateLabel(label string) error {
	if !labelPattern.MatchString(label) || strings.Trim(label, ".") == "" {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendGCS    = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of memory, file, badger or gcs. Default: file.
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory file badger gcs"`

	// Path is the artifacts directory (file) or database directory (badger).
	Path string `yaml:"path"`

	// Bucket and Prefix locate snapshots for the gcs backend.
	Bucket string `yaml:"bucket" validate:"required_if=Backend gcs"`
	Prefix string `yaml:"prefix"`

	// CredentialsFile is an optional service account key for gcs.
	CredentialsFile string `yaml:"credentials_file"`

	// Logger receives backend diagnostics. Nil uses slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// Open creates the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case "", BackendFile:
		return NewFileStore(cfg.Path), nil
	case BackendBadger:
		bc := DefaultBadgerConfig()
		bc.Path = cfg.Path
		bc.Logger = logger
		return OpenBadgerStore(bc)
	case BackendGCS:
		return NewGCSStore(ctx, GCSConfig{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			CredentialsFile: cfg.CredentialsFile,
			Logger:          logger,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// ParseURL maps a store location to a Config.
//
//	gs://bucket/prefix -> gcs
//	badger:///path     -> badger
//	memory:            -> memory
//	anything else      -> file directory
func ParseURL(raw string) Config {
	switch {
	case strings.HasPrefix(raw, "gs://"):
		rest := strings.TrimPrefix(raw, "gs://")
		bucket, prefix, _ := strings.Cut(rest, "/")
		return Config{Backend: BackendGCS, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}
	case strings.HasPrefix(raw, "badger://"):
		return Config{Backend: BackendBadger, Path: strings.TrimPrefix(raw, "badger://")}
	case raw == "memory:" || raw == "memory":
		return Config{Backend: BackendMemory}
	default:
		return Config{Backend: BackendFile, Path: raw}
	}
}

func objectName(label string) string {
	return "snap_" + label + ".json"
}

func labelFromObject(name string) (string, bool) {
	if !strings.HasPrefix(name, "snap_") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	label := strings.TrimSuffix(strings.TrimPrefix(name, "snap_"), ".json")
	if ValidateLabel(label) != nil {
		return "", false
	}
	return label, true
}
