// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morganforge/sourcefast/internal/config"
	"github.com/morganforge/sourcefast/internal/indexer"
	"github.com/morganforge/sourcefast/internal/query"
	"github.com/morganforge/sourcefast/internal/store"
)

func drain(t *testing.T, events <-chan indexer.Event) []indexer.Event {
	t.Helper()
	var out []indexer.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRunIndexesTextFilesUnderNoVCS(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.rs"), []byte("fn hello_world() {}\n"), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	events := make(chan indexer.Event, 32)
	done := make(chan []indexer.Event, 1)
	go func() { done <- drain(t, events) }()

	report, err := indexer.Run(context.Background(), dir, cfg, events, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.Reindexed)
	require.Equal(t, 0, report.Deleted)

	seen := <-done
	var sawFinished bool
	for _, ev := range seen {
		if ev.Kind == indexer.EventFinished {
			sawFinished = true
		}
	}
	require.True(t, sawFinished)

	s, err := store.Open(cfg.AbsDatabasePath(), cfg.LockTimeout)
	require.NoError(t, err)
	defer s.Close()

	matches, err := query.SearchContent(context.Background(), s, dir, "hello_world", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "src/a.rs", matches[0].Path)
}

func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("stable content"), 0o644))
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	ev1 := make(chan indexer.Event, 32)
	go drain(t, ev1)
	_, err = indexer.Run(context.Background(), dir, cfg, ev1, true)
	require.NoError(t, err)

	ev2 := make(chan indexer.Event, 32)
	go drain(t, ev2)
	report2, err := indexer.Run(context.Background(), dir, cfg, ev2, true)
	require.NoError(t, err)
	require.Equal(t, 0, report2.Reindexed, "unchanged content must downgrade to a no-op on the second pass")
	require.Equal(t, 0, report2.Deleted)
}

func TestRunSkipsBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icon.png"), png, 0o644))
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	events := make(chan indexer.Event, 32)
	go drain(t, events)
	report, err := indexer.Run(context.Background(), dir, cfg, events, true)
	require.NoError(t, err)
	require.Equal(t, 0, report.Reindexed)
	require.Equal(t, 1, report.Skipped)

	s, err := store.Open(cfg.AbsDatabasePath(), cfg.LockTimeout)
	require.NoError(t, err)
	defer s.Close()
	_, ok, err := s.FileByPath("icon.png")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunDeletesRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello_world"), 0o644))
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	ev1 := make(chan indexer.Event, 32)
	go drain(t, ev1)
	_, err = indexer.Run(context.Background(), dir, cfg, ev1, true)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	ev2 := make(chan indexer.Event, 32)
	go drain(t, ev2)
	report2, err := indexer.Run(context.Background(), dir, cfg, ev2, true)
	require.NoError(t, err)
	require.Equal(t, 1, report2.Deleted)

	s, err := store.Open(cfg.AbsDatabasePath(), cfg.LockTimeout)
	require.NoError(t, err)
	defer s.Close()
	_, ok, err := s.FileByPath("a.txt")
	require.NoError(t, err)
	require.False(t, ok)
}
