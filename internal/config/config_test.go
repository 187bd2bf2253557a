// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/morganforge/sourcefast/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.DefaultConfig("/repo")
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, int64(4<<20), cfg.MaxFileSizeBytes)
	require.Equal(t, 5*time.Second, cfg.LockTimeout)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".source_fast"), 0o755))
	toml := `
max_file_size_bytes = 1048576
workers = 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".source_fast", "config.toml"), []byte(toml), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, int64(1048576), cfg.MaxFileSizeBytes)
	require.Equal(t, 4, cfg.Workers)
}

func TestLoadEnvOverridesTakePriority(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SOURCEFAST_WORKERS", "8")
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Workers)
}

func TestValidateRejectsBadProbeSize(t *testing.T) {
	cfg := config.DefaultConfig("/repo")
	cfg.ProbeSizeBytes = cfg.MaxFileSizeBytes + 1
	require.Error(t, cfg.Validate())
}
