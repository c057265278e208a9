// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package roster

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current dataset snapshot and swaps it atomically on
// reload.
//
// Description:
//
//	Requests read whatever snapshot is current when they begin; a reload
//	never disturbs views already handed out, because a Dataset is immutable.
//	A Store with no snapshot (nil Current) means the dataset is unavailable
//	and every query must fail with a service-unavailable response until a
//	load succeeds.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	current atomic.Pointer[Dataset]
}

// NewStore creates a Store seeded with ds. ds may be nil when the initial
// load failed; the store then reports unavailable until Replace is called.
func NewStore(ds *Dataset) *Store {
	s := &Store{}
	if ds != nil {
		s.current.Store(ds)
	}
	return s
}

// Current returns the active snapshot, or nil when no dataset is loaded.
func (s *Store) Current() *Dataset {
	return s.current.Load()
}

// Replace atomically installs a new snapshot.
func (s *Store) Replace(ds *Dataset) {
	s.current.Store(ds)
}

// debounce absorbs the bursts of write events most editors and atomic-save
// tools emit for a single logical file change.
const debounce = 250 * time.Millisecond

// Watch reloads the dataset whenever the CSV file changes on disk.
//
// Description:
//
//	Watches the file's directory (editors often replace the file rather
//	than writing in place, which drops a watch set on the file itself) and
//	reloads on write/create/rename events for the target path. A failed
//	reload keeps the previous snapshot and logs a warning; the service
//	degrades to serving slightly stale data instead of no data.
//
//	Blocks until ctx is cancelled. Returns a non-nil error only when the
//	watcher itself cannot be established.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("roster: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("roster: watching %s: %w", dir, err)
	}

	slog.Info("Watching dataset for changes", slog.String("path", path))

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			ds, err := Load(path)
			if err != nil {
				slog.Warn("Dataset reload failed, keeping previous snapshot",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				continue
			}
			s.Replace(ds)
			slog.Info("Dataset reloaded", slog.Int("rows", ds.Len()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Dataset watcher error", slog.String("error", err.Error()))
		}
	}
}
