// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package query resolves a search string into verified, snippeted matches
// against the trigram index: intersect candidate postings, resolve file
// ids to paths, optionally filter by a path regex, then verify each
// candidate by a literal byte-exact scan and extract surrounding-line
// context.
package query

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/morganforge/sourcefast/internal/sferrors"
	"github.com/morganforge/sourcefast/internal/sflog"
	"github.com/morganforge/sourcefast/internal/store"
	"github.com/morganforge/sourcefast/internal/trigram"
)

// Match is one verified occurrence of the query string in a file.
type Match struct {
	Path     string
	LineNo   int
	Snippet  string
	Offset   int
}

// Lookup is the subset of *store.Store the evaluator depends on, so
// tests can substitute a fake backing store.
type Lookup interface {
	LookupTrigram(t trigram.T) (*store.Bitmap, bool, error)
	FilesByIDs(ids []uint32) ([]store.FileRecord, error)
	SearchPathsLike(substr string) ([]string, error)
}

// SearchContent runs the full content-query procedure: trigram
// intersection, path-regex filtering, verification, and snippet
// extraction. fileRegex may be nil to mean "no filter". root is the
// indexed repository root; stored paths are repository-relative and are
// joined with root to read the candidate's bytes during verification.
func SearchContent(ctx context.Context, l Lookup, root, q string, fileRegex *regexp.Regexp) ([]Match, error) {
	tgs := trigram.Extract([]byte(q))
	if len(tgs) == 0 {
		return nil, sferrors.ErrQueryTooShort
	}

	bitmaps := make([]*store.Bitmap, 0, len(tgs))
	for _, tg := range tgs {
		bm, ok, err := l.LookupTrigram(tg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		bitmaps = append(bitmaps, bm)
	}
	store.SortByCardinality(bitmaps)

	result := bitmaps[0].Clone()
	for _, bm := range bitmaps[1:] {
		result.And(bm)
		if result.IsEmpty() {
			return nil, nil
		}
	}

	ids := result.ToArray()
	records, err := l.FilesByIDs(ids)
	if err != nil {
		return nil, err
	}

	if fileRegex != nil {
		filtered := records[:0]
		for _, rec := range records {
			if fileRegex.MatchString(rec.Path) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	type fileResult struct {
		path    string
		matches []Match
		err     error
	}
	results := make([]fileResult, len(records))

	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			matches, err := verifyAndSnippet(root, rec.Path, q)
			results[i] = fileResult{path: rec.Path, matches: matches, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		return nil, err
	}

	var out []Match
	for _, r := range results {
		if r.err != nil {
			sflog.Warn("search: skipping candidate: %v", r.err)
			continue
		}
		out = append(out, r.matches...)
	}
	return out, nil
}

// SearchPaths returns every indexed path containing substr, using
// ASCII-only case folding (the documented resolution for path search:
// Unicode-aware folding was left unspecified upstream, and ASCII
// case-folding is the safe, predictable default). Results are sorted
// lexicographically; no trigram lookup is involved.
func SearchPaths(l Lookup, substr string) ([]string, error) {
	return l.SearchPathsLike(substr)
}

// verifyAndSnippet reads path and performs the literal byte-exact
// substring check required because trigram co-occurrence does not imply
// substring occurrence. Matching lines are reported with the two lines
// above and below, 1-based line numbers, and an arrow marker; overlapping
// windows are merged so a run of adjacent matches doesn't duplicate
// context lines.
func verifyAndSnippet(root, path, q string) ([]Match, error) {
	data, err := os.ReadFile(filepath.Join(root, path))
	if err != nil {
		return nil, &sferrors.IoError{Path: path, Err: err}
	}
	if !bytes.Contains(data, []byte(q)) {
		return nil, nil
	}

	lines := splitLinesKeepOffsets(data)

	var lineMatches []int
	for i, ln := range lines {
		if bytes.Contains(ln.text, []byte(q)) {
			lineMatches = append(lineMatches, i)
		}
	}
	if len(lineMatches) == 0 {
		return nil, nil
	}

	windows := mergeWindows(lineMatches, len(lines), 2)

	var out []Match
	for _, w := range windows {
		for _, matchLine := range w.matchLines {
			out = append(out, Match{
				Path:    path,
				LineNo:  matchLine + 1,
				Snippet: renderSnippet(lines, w.lo, w.hi, matchLine),
				Offset:  lines[matchLine].offset,
			})
		}
	}
	return out, nil
}

type lineSpan struct {
	text   []byte
	offset int
}

func splitLinesKeepOffsets(data []byte) []lineSpan {
	var out []lineSpan
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	offset := 0
	for sc.Scan() {
		b := sc.Bytes()
		cp := make([]byte, len(b))
		copy(cp, b)
		out = append(out, lineSpan{text: cp, offset: offset})
		offset += len(b) + 1
	}
	return out
}

type window struct {
	lo, hi     int
	matchLines []int
}

// mergeWindows builds the ±radius context window for each matching line,
// merging any windows that overlap so a cluster of nearby matches
// produces one combined snippet block instead of duplicated lines.
func mergeWindows(matchLines []int, total, radius int) []window {
	var windows []window
	for _, ln := range matchLines {
		lo := ln - radius
		if lo < 0 {
			lo = 0
		}
		hi := ln + radius
		if hi > total-1 {
			hi = total - 1
		}
		if len(windows) > 0 && lo <= windows[len(windows)-1].hi+1 {
			last := &windows[len(windows)-1]
			if hi > last.hi {
				last.hi = hi
			}
			last.matchLines = append(last.matchLines, ln)
			continue
		}
		windows = append(windows, window{lo: lo, hi: hi, matchLines: []int{ln}})
	}
	return windows
}

func renderSnippet(lines []lineSpan, lo, hi, matchLine int) string {
	var b strings.Builder
	for i := lo; i <= hi; i++ {
		marker := "  "
		if i == matchLine {
			marker = "> "
		}
		b.WriteString(marker)
		b.Write(lines[i].text)
		if i != hi {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
