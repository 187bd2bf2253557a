// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plan computes the set of (path, operation) tuples that bring
// the index into agreement with the working tree, given the last
// indexed vcs_head: a VCS-diff-driven fast path when possible, a full
// tree walk otherwise.
package plan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/morganforge/sourcefast/internal/classify"
	"github.com/morganforge/sourcefast/internal/config"
	"github.com/morganforge/sourcefast/internal/sferrors"
	"github.com/morganforge/sourcefast/internal/store"
	"github.com/morganforge/sourcefast/internal/vcsgit"
)

// Op is the operation the Indexer must apply for a path.
type Op int

const (
	OpReIndex Op = iota
	OpDelete
)

func (o Op) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "reindex"
}

// Step is one entry of a Plan.
type Step struct {
	Path string
	Op   Op
}

// Mode records which planning strategy produced a Plan, purely for
// progress reporting.
type Mode int

const (
	ModeFast Mode = iota
	ModeFull
)

// Plan is the planner's full output: the ordered steps (deletes before
// reindexes), the mode used, and the VCS head the plan was computed
// against (empty if the repository has no VCS or no commits yet).
type Plan struct {
	Steps   []Step
	Mode    Mode
	NewHead string
}

// VCS is the subset of vcsgit.Collaborator the planner depends on, so a
// fake can stand in for tests.
type VCS interface {
	Head() (string, bool, error)
	IsAncestor(a, b string) (bool, error)
	Diff(a, b string) ([]vcsgit.Change, error)
	Status() ([]string, error)
	LsFiles() ([]string, error)
	IsIgnored(path string) (bool, error)
}

// FileLister is the subset of *store.Store the planner needs to learn
// what's already indexed.
type FileLister interface {
	AllPaths() ([]string, error)
	FileByPath(path string) (*store.FileRecord, bool, error)
}

// Compute produces a Plan for root. vcs may be nil, meaning "no VCS
// collaborator available"; forceFull forces the full-path mode even
// when a fast path would otherwise be viable (the explicit-rebuild
// request named in the design).
func Compute(ctx context.Context, root string, cfg *config.Config, fl FileLister, vcs VCS, previousHead string, forceFull bool) (*Plan, error) {
	if !forceFull && vcs != nil && previousHead != "" {
		newHead, present, err := vcs.Head()
		if err == nil && present {
			if ok, err := vcs.IsAncestor(previousHead, newHead); err == nil && ok {
				p, err := computeFastPath(root, cfg, vcs, previousHead, newHead)
				if !errors.Is(err, sferrors.ErrVcsUnavailable) {
					return p, err
				}
				// the VCS collaborator failed mid-plan: fall back to a full scan
			}
		}
	}
	return computeFullPath(root, cfg, fl, vcs)
}

func computeFastPath(root string, cfg *config.Config, vcs VCS, oldHead, newHead string) (*Plan, error) {
	changes, err := vcs.Diff(oldHead, newHead)
	if err != nil {
		return nil, err
	}

	var deletes, reindexes []string
	seen := make(map[string]bool)

	for _, ch := range changes {
		switch ch.Kind {
		case vcsgit.Added, vcsgit.Modified:
			reindexes = append(reindexes, ch.Path)
			seen[ch.Path] = true
		case vcsgit.Deleted:
			deletes = append(deletes, ch.Path)
		case vcsgit.Renamed:
			deletes = append(deletes, ch.OldPath)
			reindexes = append(reindexes, ch.Path)
			seen[ch.Path] = true
		}
	}

	dirty, err := vcs.Status()
	if err != nil {
		return nil, err
	}
	for _, path := range dirty {
		if seen[path] {
			continue
		}
		abs := filepath.Join(root, path)
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			deletes = append(deletes, path)
		} else {
			reindexes = append(reindexes, path)
			seen[path] = true
		}
	}

	untracked, err := findUntracked(root, cfg, vcs)
	if err != nil {
		return nil, err
	}
	for _, path := range untracked {
		if !seen[path] {
			reindexes = append(reindexes, path)
			seen[path] = true
		}
	}

	steps := buildSteps(deletes, reindexes)
	return &Plan{Steps: steps, Mode: ModeFast, NewHead: newHead}, nil
}

func findUntracked(root string, cfg *config.Config, vcs VCS) ([]string, error) {
	tracked, err := vcs.LsFiles()
	if err != nil {
		return nil, err
	}
	trackedSet := make(map[string]bool, len(tracked))
	for _, p := range tracked {
		trackedSet[p] = true
	}

	var out []string
	err = walkTree(root, cfg, func(rel string) error {
		if trackedSet[rel] {
			return nil
		}
		ignored, err := vcs.IsIgnored(rel)
		if err != nil || ignored {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

func computeFullPath(root string, cfg *config.Config, fl FileLister, vcs VCS) (*Plan, error) {
	var reindexes []string
	present := make(map[string]bool)

	err := walkTree(root, cfg, func(rel string) error {
		if vcs != nil {
			if ignored, err := vcs.IsIgnored(rel); err == nil && ignored {
				return nil
			}
		}
		present[rel] = true
		reindexes = append(reindexes, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if collision := findCaseCollision(reindexes); collision != "" {
		return nil, fmt.Errorf("%s: %w", collision, sferrors.ErrPathCollision)
	}

	existing, err := fl.AllPaths()
	if err != nil {
		return nil, err
	}
	var deletes []string
	for _, p := range existing {
		if !present[p] {
			deletes = append(deletes, p)
		}
	}

	steps := buildSteps(deletes, reindexes)

	var newHead string
	if vcs != nil {
		if h, ok, err := vcs.Head(); err == nil && ok {
			newHead = h
		}
	}
	return &Plan{Steps: steps, Mode: ModeFull, NewHead: newHead}, nil
}

// walkTree enumerates candidate files under root, honoring the
// compiled-in deny list and skipping the index's own .source_fast
// directory. fn receives the repository-relative
// path for every candidate (classification happens later, at apply time,
// against fresh bytes — the walk only decides which paths are eligible
// to be considered).
func walkTree(root string, cfg *config.Config, fn func(rel string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := classify.Normalize(root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if rel == ".source_fast" || denied(rel, cfg.IgnorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if denied(rel, cfg.IgnorePatterns) {
			return nil
		}
		return fn(rel)
	})
}

func denied(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pat := range patterns {
		// a trailing slash marks a directory pattern such as ".git/"
		pat = strings.TrimSuffix(pat, "/")
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// findCaseCollision reports the first pair of distinct relative paths that
// collide under strings.EqualFold, such as "README.md" and "readme.md"
// landing in the same full-tree walk. On a case-insensitive filesystem
// these name the same inode and cannot both be indexed independently, so
// the caller surfaces this instead of silently indexing one over the
// other.
func findCaseCollision(paths []string) string {
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		key := strings.ToLower(p)
		if prior, ok := seen[key]; ok && prior != p {
			return fmt.Sprintf("%q and %q", prior, p)
		}
		seen[key] = p
	}
	return ""
}

// buildSteps emits all Deletes before all ReIndexes (so a renamed-to-
// same-basename collision on a case-insensitive filesystem cannot
// collide), each sorted for deterministic application order.
func buildSteps(deletes, reindexes []string) []Step {
	sort.Strings(deletes)
	sort.Strings(reindexes)

	steps := make([]Step, 0, len(deletes)+len(reindexes))
	for _, p := range deletes {
		steps = append(steps, Step{Path: p, Op: OpDelete})
	}
	for _, p := range reindexes {
		steps = append(steps, Step{Path: p, Op: OpReIndex})
	}
	return steps
}
