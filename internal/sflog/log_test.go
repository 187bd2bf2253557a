// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sflog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morganforge/sourcefast/internal/sflog"
)

func TestInitCLIWritesToLogPath(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "sourcefast.log")
	t.Setenv("SOURCEFAST_LOG_PATH", logPath)

	closer, err := sflog.InitCLI()
	require.NoError(t, err)

	sflog.Printf("hello %s", "world")
	sflog.Warn("careful %d", 7)
	sflog.Error("boom")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello world")
	require.Contains(t, string(data), "WARN careful 7")
	require.Contains(t, string(data), "ERROR boom")
}

func TestInitServerWithoutLogPathFallsBackToStderr(t *testing.T) {
	t.Setenv("SOURCEFAST_LOG_PATH", "")

	closer, err := sflog.InitServer()
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	sflog.Println("no panic expected even though nothing captures this")
}
