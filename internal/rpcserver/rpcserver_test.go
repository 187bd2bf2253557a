// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package rpcserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/morganforge/sourcefast/internal/classify"
	"github.com/morganforge/sourcefast/internal/config"
	"github.com/morganforge/sourcefast/internal/store"
	"github.com/morganforge/sourcefast/internal/trigram"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("func helloWorld() {}\n"), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	s, err := store.OpenOrRecreate(cfg.AbsDatabasePath(), cfg.LockTimeout)
	require.NoError(t, err)

	txn, err := s.Begin(context.Background())
	require.NoError(t, err)

	rel, err := classify.Normalize(dir, filepath.Join(dir, "a.go"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "a.go"))
	require.NoError(t, err)
	hash := store.ContentHash(data)
	set := trigram.Extract(data)
	_, err = txn.UpsertFile(rel, 0, int64(len(data)), hash, set)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	require.NoError(t, s.Close())

	srv := &Server{root: dir, cfg: cfg}
	s2, err := store.Open(cfg.AbsDatabasePath(), cfg.LockTimeout)
	require.NoError(t, err)
	srv.s = s2
	srv.registerTools()
	return srv, dir
}

func callReq(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestHandleSearchCodeFindsMatch(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.s.Close()

	res, err := srv.handleSearchCode(context.Background(), callReq("search_code", map[string]interface{}{
		"query": "helloWorld",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestHandleSearchCodeRejectsMissingQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.s.Close()

	res, err := srv.handleSearchCode(context.Background(), callReq("search_code", map[string]interface{}{}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleSearchCodeRejectsTooShortQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.s.Close()

	res, err := srv.handleSearchCode(context.Background(), callReq("search_code", map[string]interface{}{
		"query": "ab",
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleSearchCodeRejectsInvalidFileRegex(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.s.Close()

	res, err := srv.handleSearchCode(context.Background(), callReq("search_code", map[string]interface{}{
		"query":      "hello",
		"file_regex": "(unterminated",
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}
