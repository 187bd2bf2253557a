// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify is the optional change notifier: it watches a
// repository root and emits coarse "something changed" events that
// trigger a Planner/Indexer run. It is a collaborator named but not
// specified by the core engine; this implementation uses fsnotify with
// a debounce window, falling back to a polling stat-based watcher when
// fsnotify cannot be established (e.g. inotify watch limits exhausted).
package notify

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/morganforge/sourcefast/internal/sflog"
)

// Watcher emits a signal on Events whenever the tree under its root has
// changed, coalesced by debounce so a burst of edits produces one event.
type Watcher interface {
	Events() <-chan struct{}
	Close() error
}

// Start begins watching root, preferring fsnotify and falling back to
// polling if the fsnotify watcher cannot be created.
func Start(ctx context.Context, root string, debounce time.Duration) (Watcher, error) {
	w, err := newFsnotifyWatcher(ctx, root, debounce)
	if err == nil {
		return w, nil
	}
	sflog.Warn("fsnotify unavailable (%v), falling back to polling watcher", err)
	return newPollingWatcher(ctx, root, debounce), nil
}

type fsnotifyWatcher struct {
	fsw    *fsnotify.Watcher
	events chan struct{}
}

func newFsnotifyWatcher(ctx context.Context, root string, debounce time.Duration) (*fsnotifyWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(fsw, root); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &fsnotifyWatcher{fsw: fsw, events: make(chan struct{}, 1)}

	go w.loop(ctx, debounce)
	return w, nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if filepath.Base(path) == ".git" || filepath.Base(path) == ".source_fast" {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *fsnotifyWatcher) loop(ctx context.Context, debounce time.Duration) {
	var timer *time.Timer
	var fired <-chan time.Time

	emit := func() {
		select {
		case w.events <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			fired = timer.C
		case <-fired:
			emit()
			fired = nil
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			sflog.Warn("fsnotify error: %v", err)
		}
	}
}

func (w *fsnotifyWatcher) Events() <-chan struct{} { return w.events }
func (w *fsnotifyWatcher) Close() error            { return w.fsw.Close() }

// pollingWatcher is the fallback for environments where fsnotify cannot
// establish a watch (e.g. inotify limits exhausted, or a filesystem
// that doesn't support kernel-level change notification).
type pollingWatcher struct {
	events chan struct{}
	cancel context.CancelFunc
}

func newPollingWatcher(ctx context.Context, root string, debounce time.Duration) *pollingWatcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &pollingWatcher{events: make(chan struct{}, 1), cancel: cancel}
	go w.loop(ctx, root, debounce)
	return w
}

func (w *pollingWatcher) loop(ctx context.Context, root string, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastCount := -1
	var lastMaxMtime int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, maxMtime := snapshotTree(root)
			if lastCount != -1 && (count != lastCount || maxMtime != lastMaxMtime) {
				select {
				case w.events <- struct{}{}:
				default:
				}
			}
			lastCount, lastMaxMtime = count, maxMtime
		}
	}
}

func snapshotTree(root string) (count int, maxMtime int64) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if filepath.Base(path) == ".git" || filepath.Base(path) == ".source_fast" {
				return filepath.SkipDir
			}
			return nil
		}
		count++
		if info, err := d.Info(); err == nil {
			if mt := info.ModTime().UnixNano(); mt > maxMtime {
				maxMtime = mt
			}
		}
		return nil
	})
	return count, maxMtime
}

func (w *pollingWatcher) Events() <-chan struct{} { return w.events }
func (w *pollingWatcher) Close() error             { w.cancel(); return nil }
