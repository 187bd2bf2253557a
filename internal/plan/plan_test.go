// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morganforge/sourcefast/internal/config"
	"github.com/morganforge/sourcefast/internal/plan"
	"github.com/morganforge/sourcefast/internal/sferrors"
	"github.com/morganforge/sourcefast/internal/store"
	"github.com/morganforge/sourcefast/internal/vcsgit"
)

type fakeVCS struct {
	head      string
	ancestors map[string]bool
	diff      []vcsgit.Change
	dirty     []string
	tracked   []string
	ignored   map[string]bool
}

func (f *fakeVCS) Head() (string, bool, error) { return f.head, f.head != "", nil }
func (f *fakeVCS) IsAncestor(a, b string) (bool, error) {
	return f.ancestors[a+">"+b], nil
}
func (f *fakeVCS) Diff(a, b string) ([]vcsgit.Change, error) { return f.diff, nil }
func (f *fakeVCS) Status() ([]string, error)                 { return f.dirty, nil }
func (f *fakeVCS) LsFiles() ([]string, error)                { return f.tracked, nil }
func (f *fakeVCS) IsIgnored(path string) (bool, error)       { return f.ignored[path], nil }

type fakeLister struct {
	paths []string
}

func (f *fakeLister) AllPaths() ([]string, error) { return f.paths, nil }
func (f *fakeLister) FileByPath(path string) (*store.FileRecord, bool, error) {
	for _, p := range f.paths {
		if p == path {
			return &store.FileRecord{Path: p}, true, nil
		}
	}
	return nil, false, nil
}

func TestComputeFastPathTranslatesDiff(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig(dir)

	v := &fakeVCS{
		head:      "new",
		ancestors: map[string]bool{"old>new": true},
		diff: []vcsgit.Change{
			{Kind: vcsgit.Added, Path: "a.go"},
			{Kind: vcsgit.Modified, Path: "b.go"},
			{Kind: vcsgit.Deleted, Path: "c.go"},
			{Kind: vcsgit.Renamed, OldPath: "d.go", Path: "e.go"},
		},
	}
	fl := &fakeLister{}

	p, err := plan.Compute(context.Background(), dir, cfg, fl, v, "old", false)
	require.NoError(t, err)
	require.Equal(t, plan.ModeFast, p.Mode)
	require.Equal(t, "new", p.NewHead)

	var deletes, reindexes []string
	for _, s := range p.Steps {
		if s.Op == plan.OpDelete {
			deletes = append(deletes, s.Path)
		} else {
			reindexes = append(reindexes, s.Path)
		}
	}
	require.ElementsMatch(t, []string{"c.go", "d.go"}, deletes)
	require.ElementsMatch(t, []string{"a.go", "b.go", "e.go"}, reindexes)
}

func TestComputeFastPathDeletesOrderedBeforeReIndexes(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig(dir)
	v := &fakeVCS{
		head:      "new",
		ancestors: map[string]bool{"old>new": true},
		diff: []vcsgit.Change{
			{Kind: vcsgit.Renamed, OldPath: "same.go", Path: "same.go"},
		},
	}
	p, err := plan.Compute(context.Background(), dir, cfg, &fakeLister{}, v, "old", false)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)
	require.Equal(t, plan.OpDelete, p.Steps[0].Op)
	require.Equal(t, plan.OpReIndex, p.Steps[1].Op)
}

func TestComputeFallsBackToFullPathWhenNoPreviousHead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.go"), []byte("x"), 0o644))
	cfg := config.DefaultConfig(dir)

	v := &fakeVCS{head: "h1", ignored: map[string]bool{}}
	fl := &fakeLister{paths: []string{"stale.go"}}

	p, err := plan.Compute(context.Background(), dir, cfg, fl, v, "", false)
	require.NoError(t, err)
	require.Equal(t, plan.ModeFull, p.Mode)

	var deletes, reindexes []string
	for _, s := range p.Steps {
		if s.Op == plan.OpDelete {
			deletes = append(deletes, s.Path)
		} else {
			reindexes = append(reindexes, s.Path)
		}
	}
	require.Equal(t, []string{"stale.go"}, deletes)
	require.Equal(t, []string{"only.go"}, reindexes)
}

func TestComputeForceFullIgnoresFastPathEligibility(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.go"), []byte("x"), 0o644))
	cfg := config.DefaultConfig(dir)

	v := &fakeVCS{head: "new", ancestors: map[string]bool{"old>new": true}}
	p, err := plan.Compute(context.Background(), dir, cfg, &fakeLister{}, v, "old", true)
	require.NoError(t, err)
	require.Equal(t, plan.ModeFull, p.Mode)
}

func TestComputeFullPathReportsCaseInsensitiveCollision(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("y"), 0o644))
	cfg := config.DefaultConfig(dir)

	_, err := plan.Compute(context.Background(), dir, cfg, &fakeLister{}, nil, "", true)
	require.Error(t, err)
	require.True(t, errors.Is(err, sferrors.ErrPathCollision))
}
