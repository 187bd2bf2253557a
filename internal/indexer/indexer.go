// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package indexer is the single entry point that orchestrates a full
// planning-then-apply cycle: open (or recreate) the store, ask the
// Change Planner what to do, apply it inside one transaction with a
// bounded worker pool doing the CPU/IO-bound file work, and update
// repository metadata atomically. Either the whole pass becomes visible
// or none of it does.
package indexer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/morganforge/sourcefast/internal/classify"
	"github.com/morganforge/sourcefast/internal/config"
	"github.com/morganforge/sourcefast/internal/plan"
	"github.com/morganforge/sourcefast/internal/sferrors"
	"github.com/morganforge/sourcefast/internal/sflog"
	"github.com/morganforge/sourcefast/internal/store"
	"github.com/morganforge/sourcefast/internal/trigram"
	"github.com/morganforge/sourcefast/internal/vcsgit"
)

// Op mirrors plan.Op as a string for progress reporting, so the report
// package doesn't need to import plan directly.
type Op string

const (
	OpReIndex Op = "reindex"
	OpDelete  Op = "delete"
)

// EventKind enumerates the structured progress events an index pass
// emits, as named in the external-interfaces design: scanning, planning,
// applied{path,op}, finished{counts}.
type EventKind string

const (
	EventScanning EventKind = "scanning"
	EventPlanning EventKind = "planning"
	EventApplied  EventKind = "applied"
	EventSkipped  EventKind = "skipped"
	EventFinished EventKind = "finished"
)

// Event is one structured progress notification from Run.
type Event struct {
	Kind EventKind
	Root string
	Op   Op
	Path string
	Err  error

	Reindexed int
	Deleted   int
	Skipped   int
}

// Report is the summary Run returns once a pass completes.
type Report struct {
	RunID     string
	Mode      plan.Mode
	Reindexed int
	Deleted   int
	Skipped   int
	NewHead   string
}

// Run executes one planning-then-apply cycle against root, emitting
// progress on events (which Run closes when it returns) and returning a
// summary Report. forceFull forces the full-scan Planner mode.
func Run(ctx context.Context, root string, cfg *config.Config, events chan<- Event, forceFull bool) (Report, error) {
	defer close(events)

	runID := uuid.NewString()
	events <- Event{Kind: EventScanning, Root: root}

	s, err := store.OpenOrRecreate(cfg.AbsDatabasePath(), cfg.LockTimeout)
	if err != nil {
		return Report{}, fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	held, err := s.TryAcquireWriterLease("indexer", runID, 2*cfg.LockTimeout)
	if err != nil {
		return Report{}, fmt.Errorf("acquire writer lease: %w", err)
	}
	if !held {
		return Report{}, sferrors.ErrBusy
	}

	var vcs plan.VCS
	if v, err := vcsgit.Open(root); err == nil {
		vcs = v
	} else {
		sflog.Warn("vcs collaborator unavailable, falling back to full-scan mode: %v", err)
		forceFull = true
	}

	previousHead, _, _ := s.GetMeta("vcs_head")

	events <- Event{Kind: EventPlanning, Root: root}
	p, err := plan.Compute(ctx, root, cfg, s, vcs, previousHead, forceFull)
	if err != nil {
		return Report{}, fmt.Errorf("compute plan: %w", err)
	}

	rep, err := apply(ctx, root, cfg, s, p, events)
	rep.RunID = runID
	rep.Mode = p.Mode
	return rep, err
}

// apply runs every Step of p inside one transaction, deletes first, then
// reindexes, using a bounded worker pool for the CPU/IO-bound per-file
// work (classification, trigram extraction, hashing) while the store
// mutations themselves stay serialized through the single Txn.
func apply(ctx context.Context, root string, cfg *config.Config, s *store.Store, p *plan.Plan, events chan<- Event) (Report, error) {
	txn, err := s.Begin(ctx)
	if err != nil {
		return Report{}, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	fdSem := semaphore.NewWeighted(int64(cfg.MaxOpenFiles))

	type prepared struct {
		step  plan.Step
		path  string
		mtime int64
		size  int64
		hash  []byte
		tgs   []trigram.T
		skip  bool
		err   error
	}

	reindexSteps := make([]plan.Step, 0, len(p.Steps))
	deleteSteps := make([]plan.Step, 0, len(p.Steps))
	for _, step := range p.Steps {
		if step.Op == plan.OpDelete {
			deleteSteps = append(deleteSteps, step)
		} else {
			reindexSteps = append(reindexSteps, step)
		}
	}

	var deleted, skipped int
	for _, step := range deleteSteps {
		select {
		case <-ctx.Done():
			txn.Abort()
			return Report{}, fmt.Errorf("%w: %v", sferrors.ErrCancelled, ctx.Err())
		default:
		}
		if _, err := txn.DeleteFile(step.Path); err != nil {
			txn.Abort()
			return Report{}, err
		}
		deleted++
		events <- Event{Kind: EventApplied, Op: OpDelete, Path: step.Path}
	}

	prep := make([]prepared, len(reindexSteps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, step := range reindexSteps {
		i, step := i, step
		g.Go(func() error {
			if err := fdSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer fdSem.Release(1)

			kind, err := classify.ClassifyFile(joinRoot(root, step.Path), cfg.ProbeSizeBytes, cfg.MaxFileSizeBytes)
			if err != nil {
				prep[i] = prepared{step: step, path: step.Path, skip: true, err: err}
				return nil
			}
			if kind == classify.Binary {
				prep[i] = prepared{step: step, path: step.Path, skip: true}
				return nil
			}

			data, mtime, size, err := readFileWithStat(joinRoot(root, step.Path))
			if err != nil {
				prep[i] = prepared{step: step, path: step.Path, skip: true, err: err}
				return nil
			}

			prep[i] = prepared{
				step:  step,
				path:  step.Path,
				mtime: mtime,
				size:  size,
				hash:  store.ContentHash(data),
				tgs:   trigram.Extract(data),
			}
			return nil
		})
	}
	_ = g.Wait()

	var reindexed int
	for _, item := range prep {
		select {
		case <-ctx.Done():
			txn.Abort()
			return Report{}, fmt.Errorf("%w: %v", sferrors.ErrCancelled, ctx.Err())
		default:
		}

		if item.skip {
			skipped++
			events <- Event{Kind: EventSkipped, Path: item.path, Err: item.err}
			if item.err == nil {
				// classified Binary: drop any stale record, per the
				// text-to-binary transition rule.
				if _, err := txn.DeleteFile(item.path); err != nil {
					txn.Abort()
					return Report{}, err
				}
			}
			continue
		}

		existing, ok, err := s.FileByPath(item.path)
		if err != nil {
			txn.Abort()
			return Report{}, err
		}
		if ok && bytesEqual(existing.ContentHash, item.hash) {
			continue // dedup: unchanged content downgrades to a no-op
		}

		if _, err := txn.UpsertFile(item.path, item.mtime, item.size, item.hash, item.tgs); err != nil {
			txn.Abort()
			return Report{}, err
		}
		reindexed++
		events <- Event{Kind: EventApplied, Op: OpReIndex, Path: item.path}
	}

	if p.Mode == plan.ModeFull {
		existing, err := s.AllPaths()
		if err != nil {
			txn.Abort()
			return Report{}, err
		}
		planned := make(map[string]bool, len(reindexSteps))
		for _, step := range reindexSteps {
			planned[step.Path] = true
		}
		for _, path := range existing {
			if !planned[path] {
				if _, err := txn.DeleteFile(path); err != nil {
					txn.Abort()
					return Report{}, err
				}
				deleted++
			}
		}
	}

	if err := txn.SetMeta("last_indexed_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		txn.Abort()
		return Report{}, err
	}
	if p.NewHead != "" {
		if err := txn.SetMeta("vcs_head", p.NewHead); err != nil {
			txn.Abort()
			return Report{}, err
		}
	}
	if err := txn.SetMeta("root_path", root); err != nil {
		txn.Abort()
		return Report{}, err
	}

	if err := txn.Commit(); err != nil {
		return Report{}, err
	}

	events <- Event{Kind: EventFinished, Reindexed: reindexed, Deleted: deleted, Skipped: skipped}
	return Report{Reindexed: reindexed, Deleted: deleted, Skipped: skipped, NewHead: p.NewHead}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
