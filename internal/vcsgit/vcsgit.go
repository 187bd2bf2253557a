// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vcsgit is the VCS collaborator backing the Change Planner's
// fast path: head/ancestor/diff/status/ls-files/is-ignored, all answered
// from a local git repository via go-git, with no shelling out to a git
// binary. Every method returns ErrVcsUnavailable (wrapped) on any
// failure that should cause the Planner to fall back to a full scan,
// rather than aborting the caller.
package vcsgit

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/morganforge/sourcefast/internal/sferrors"
)

// ChangeKind mirrors the four change kinds the Planner understands.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Deleted
	Renamed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	case Renamed:
		return "Renamed"
	default:
		return "Unknown"
	}
}

// Change is one entry of a Diff result. OldPath is only set for Renamed.
type Change struct {
	Kind    ChangeKind
	Path    string
	OldPath string
}

// Collaborator is the VCS surface the Change Planner depends on.
type Collaborator struct {
	repo *git.Repository
	root string
}

// Open opens the git repository rooted at (or above) root. If root is
// not inside a git working tree, the caller should treat that as
// ErrVcsUnavailable and fall back to full-scan mode rather than treat it
// as fatal.
func Open(root string) (*Collaborator, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	return &Collaborator{repo: repo, root: root}, nil
}

// Head returns the current commit hash as a hex string, or ("", false)
// if HEAD is unborn (a freshly initialized repo with no commits).
func (c *Collaborator) Head() (string, bool, error) {
	ref, err := c.repo.Head()
	if err == plumbing.ErrReferenceNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	return ref.Hash().String(), true, nil
}

// IsAncestor reports whether commit a is an ancestor of (or equal to)
// commit b. Either hash not resolving to a valid commit in the current
// history (e.g. the history was rewritten) reports false and no error,
// so the Planner can fall back to full-scan without surfacing a hard
// failure.
func (c *Collaborator) IsAncestor(a, b string) (bool, error) {
	commitA, errA := c.resolveCommit(a)
	commitB, errB := c.resolveCommit(b)
	if errA != nil || errB != nil {
		return false, nil
	}
	ok, err := commitA.IsAncestor(commitB)
	if err != nil {
		return false, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	return ok, nil
}

func (c *Collaborator) resolveCommit(hash string) (*object.Commit, error) {
	h := plumbing.NewHash(hash)
	return c.repo.CommitObject(h)
}

// Diff computes the tree-level change set between commits a and b.
// Renames are detected by matching a Deleted blob hash against an Added
// blob hash: object.DiffTree, called here without rename options,
// reports a rename as a delete plus an insert, so detectRenames pairs
// them up afterwards.
func (c *Collaborator) Diff(a, b string) ([]Change, error) {
	commitA, err := c.resolveCommit(a)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", sferrors.ErrVcsUnavailable, a, err)
	}
	commitB, err := c.resolveCommit(b)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", sferrors.ErrVcsUnavailable, b, err)
	}

	treeA, err := commitA.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	treeB, err := commitB.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}

	changes, err := object.DiffTree(treeA, treeB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}

	var added, deleted []*object.Change
	var out []Change
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			continue
		}
		switch action {
		case merkletrie.Insert:
			added = append(added, ch)
		case merkletrie.Delete:
			deleted = append(deleted, ch)
		default:
			out = append(out, Change{Kind: Modified, Path: ch.To.Name})
		}
	}

	out = append(out, detectRenames(added, deleted)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func detectRenames(added, deleted []*object.Change) []Change {
	byHash := make(map[plumbing.Hash]*object.Change, len(deleted))
	for _, d := range deleted {
		byHash[d.From.TreeEntry.Hash] = d
	}

	usedDeleted := make(map[string]bool)
	var out []Change
	for _, a := range added {
		if d, ok := byHash[a.To.TreeEntry.Hash]; ok {
			out = append(out, Change{Kind: Renamed, OldPath: d.From.Name, Path: a.To.Name})
			usedDeleted[d.From.Name] = true
			continue
		}
		out = append(out, Change{Kind: Added, Path: a.To.Name})
	}
	for _, d := range deleted {
		if !usedDeleted[d.From.Name] {
			out = append(out, Change{Kind: Deleted, Path: d.From.Name})
		}
	}
	return out
}

// Status returns every repository-relative path with uncommitted
// modifications in the working tree (staged or not), for overlaying on
// top of the committed diff.
func (c *Collaborator) Status() ([]string, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	var out []string
	for path, s := range status {
		if s.Worktree != git.Unmodified || s.Staging != git.Unmodified {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// LsFiles lists every path tracked at HEAD.
func (c *Collaborator) LsFiles() ([]string, error) {
	ref, err := c.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	commit, err := c.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}

	var out []string
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
		}
		if !entry.Mode.IsFile() {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// IsIgnored reports whether path matches the repository's gitignore
// rules (root .gitignore plus any nested ones reachable from root).
func (c *Collaborator) IsIgnored(path string) (bool, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	patterns, err := gitignore.ReadPatterns(wt.Filesystem, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", sferrors.ErrVcsUnavailable, err)
	}
	matcher := gitignore.NewMatcher(patterns)
	parts := splitPath(path)
	return matcher.Match(parts, false), nil
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}
