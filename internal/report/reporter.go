// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package report renders the Indexer's progress events to a terminal,
// honoring TTY detection and NO_COLOR/FORCE_COLOR exactly as the rest of
// the CLI does. It does not render query results; the commands print
// those themselves.
package report

import (
	"fmt"
	"io"

	"github.com/morganforge/sourcefast/internal/indexer"
)

// Reporter prints indexer.Event values as they arrive on an event channel.
type Reporter struct {
	w io.Writer
}

// New returns a Reporter that writes to w.
func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Watch drains events until the channel closes, printing one styled line
// per event. Safe to run in its own goroutine while an index pass is in
// flight.
func (r *Reporter) Watch(events <-chan indexer.Event) {
	for ev := range events {
		r.print(ev)
	}
}

func (r *Reporter) print(ev indexer.Event) {
	switch ev.Kind {
	case indexer.EventScanning:
		fmt.Fprintf(r.w, "%s %s\n", InfoStyle.Render("scanning"), DimStyle.Render(ev.Root))
	case indexer.EventPlanning:
		fmt.Fprintf(r.w, "%s\n", InfoStyle.Render("planning"))
	case indexer.EventApplied:
		op := string(ev.Op)
		style := SuccessStyle
		if ev.Op == indexer.OpDelete {
			style = WarningStyle
		}
		fmt.Fprintf(r.w, "  %s %s\n", style.Render(op), ev.Path)
	case indexer.EventSkipped:
		fmt.Fprintf(r.w, "  %s %s: %v\n", WarningStyle.Render("skip"), ev.Path, ev.Err)
	case indexer.EventFinished:
		fmt.Fprintf(r.w, "%s reindexed=%d deleted=%d skipped=%d\n",
			SuccessStyle.Render("finished"), ev.Reindexed, ev.Deleted, ev.Skipped)
	default:
		fmt.Fprintf(r.w, "%s\n", string(ev.Kind))
	}
}
