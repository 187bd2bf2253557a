// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package report

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapTextPreservesShortLines(t *testing.T) {
	require.Equal(t, "short line", WrapText("short line", 80))
}

func TestWrapTextWrapsLongLines(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	wrapped := WrapText(text, 20)
	for _, line := range splitLines(wrapped) {
		require.LessOrEqual(t, len(line), 20)
	}
}

func TestColorsEnabledRespectsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("FORCE_COLOR", "1")
	colorsEnabledOnce = sync.Once{}
	require.False(t, ColorsEnabled())
}

func TestColorsEnabledRespectsForceColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "1")
	colorsEnabledOnce = sync.Once{}
	require.True(t, ColorsEnabled())
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
