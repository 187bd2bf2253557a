// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/morganforge/sourcefast/internal/classify"
)

func TestClassifyTextFile(t *testing.T) {
	got := classify.Classify([]byte("package main\n\nfunc main() {}\n"), 30, classify.DefaultMaxFileSize)
	if got != classify.Text {
		t.Fatalf("got %v, want Text", got)
	}
}

func TestClassifyNullByte(t *testing.T) {
	got := classify.Classify([]byte("abc\x00def"), 7, classify.DefaultMaxFileSize)
	if got != classify.Binary {
		t.Fatalf("got %v, want Binary", got)
	}
}

func TestClassifyEmptyFileIsText(t *testing.T) {
	got := classify.Classify(nil, 0, classify.DefaultMaxFileSize)
	if got != classify.Text {
		t.Fatalf("got %v, want Text", got)
	}
}

func TestClassifyOversizeIsBinary(t *testing.T) {
	got := classify.Classify([]byte("hello"), classify.DefaultMaxFileSize+1, classify.DefaultMaxFileSize)
	if got != classify.Binary {
		t.Fatalf("got %v, want Binary", got)
	}
}

func TestClassifyPNGHeader(t *testing.T) {
	// The 8-byte PNG signature followed by the start of the IHDR chunk,
	// whose big-endian length field carries NUL bytes.
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R'}
	got := classify.Classify(png, int64(len(png)), classify.DefaultMaxFileSize)
	if got != classify.Binary {
		t.Fatalf("got %v, want Binary", got)
	}
}

func TestNormalizeExistingFile(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "src")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "a.go")
	if err := os.WriteFile(file, []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := classify.Normalize(dir, file)
	if err != nil {
		t.Fatal(err)
	}
	if got != "src/a.go" {
		t.Fatalf("got %q, want src/a.go", got)
	}
}

func TestNormalizeDeletedFileMatchesPreDeletionForm(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "src")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "gone.go")

	before, err := classify.Normalize(dir, file)
	if err != nil {
		t.Fatal(err)
	}
	// file never existed in this test, but the parent does: normalization
	// must still succeed and match what it would have been had the file
	// existed and then been deleted.
	if before != "src/gone.go" {
		t.Fatalf("got %q, want src/gone.go", before)
	}
}

func TestNormalizeRelativePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	if err := os.WriteFile(file, []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := classify.Normalize(dir, file)
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.go" {
		t.Fatalf("got %q, want a.go", got)
	}
}
