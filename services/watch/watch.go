// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-runs the gate whenever a snapshot file changes.
//
// The watcher observes the directory holding the snapshot rather than the
// file itself, because snapshots are written with an atomic rename that
// replaces the watched inode. Bursts of events are debounced into one
// evaluation.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/gate"
	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// ErrAlreadyStarted is returned by Start on a running watcher.
var ErrAlreadyStarted = errors.New("watcher already started")

// Update is one evaluation of the watched snapshot.
type Update struct {
	// Snapshot is the reloaded current snapshot.
	Snapshot *snapshot.Snapshot

	// Decision is the gate decision against the baseline.
	Decision *gate.Decision

	// Time is when the evaluation ran.
	Time time.Time
}

// Handler receives updates. Called from the watcher goroutine.
type Handler func(Update)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait for more events before evaluating.
	// Default: 200ms
	Debounce time.Duration

	// FlakeScores and Budgets are passed to every gate check.
	FlakeScores map[string]float64
	Budgets     []diff.BudgetViolation

	// Logger for diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns a 200ms debounce.
func DefaultOptions() Options {
	return Options{Debounce: 200 * time.Millisecond}
}

// Watcher evaluates a snapshot file against a baseline on every change.
//
// Thread Safety: Start and Stop are safe for concurrent use.
type Watcher struct {
	path     string
	baseline *snapshot.Snapshot
	gate     *gate.Gate
	handler  Handler
	opts     Options
	logger   *slog.Logger

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
}

// New creates a watcher for path. baseline may be nil; the gate then
// skips every check as a first run.
//
// Inputs:
//
//	path - The current snapshot file.
//	baseline - The snapshot to compare against.
//	g - The gate to apply. Must not be nil.
//	handler - Receives every update. Must not be nil.
//	opts - Options. Zero Debounce uses the default.
func New(path string, baseline *snapshot.Snapshot, g *gate.Gate, handler Handler, opts Options) (*Watcher, error) {
	if g == nil || handler == nil {
		return nil, errors.New("watch: gate and handler are required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	return &Watcher{
		path:     abs,
		baseline: baseline,
		gate:     g,
		handler:  handler,
		opts:     opts,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Evaluate loads the snapshot and runs the gate once.
func (w *Watcher) Evaluate(ctx context.Context) (Update, error) {
	current, err := snapshot.ReadFile(w.path)
	if err != nil {
		return Update{}, err
	}
	decision, err := w.gate.Check(ctx, gate.Input{
		Baseline:    w.baseline,
		Current:     current,
		FlakeScores: w.opts.FlakeScores,
		Budgets:     w.opts.Budgets,
	})
	if err != nil {
		return Update{}, err
	}
	return Update{Snapshot: current, Decision: decision, Time: time.Now()}, nil
}

// Start begins watching. Events are processed until ctx is cancelled or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.fsw = fsw
	w.started = true

	go w.loop(ctx)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
	})
}

// Run starts the watcher and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()
	select {
	case <-ctx.Done():
	case <-w.done:
	}
	return nil
}

// loop debounces relevant events into evaluations.
func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))

		case <-timerC:
			timer = nil
			timerC = nil
			w.fire(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) fire(ctx context.Context) {
	update, err := w.Evaluate(ctx)
	if err != nil {
		// Usually a half-written file; the next event retries.
		w.logger.Warn("snapshot reload failed",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}
	w.handler(update)
}
