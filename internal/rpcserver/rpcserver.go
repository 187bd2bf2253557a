// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rpcserver exposes the engine over the JSON-RPC-over-stdio
// Model Context Protocol, registering one tool, search_code, with
// parameters {query, file_regex?}. Transport and framing are entirely
// delegated to mark3labs/mcp-go; this package only adapts tool calls to
// the query package.
package rpcserver

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/morganforge/sourcefast/internal/config"
	"github.com/morganforge/sourcefast/internal/query"
	"github.com/morganforge/sourcefast/internal/sferrors"
	"github.com/morganforge/sourcefast/internal/store"
)

// Server owns the store backing search_code calls.
type Server struct {
	root string
	cfg  *config.Config
	s    *store.Store
	mcp  *mcpserver.MCPServer
}

// New opens the store for root and wires the search_code tool.
func New(root string, cfg *config.Config) (*Server, error) {
	s, err := store.Open(cfg.AbsDatabasePath(), cfg.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	srv := &Server{root: root, cfg: cfg, s: s}
	srv.mcp = mcpserver.NewMCPServer("sourcefast", "0.1.0")
	srv.registerTools()
	return srv, nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed repository content for a literal substring, optionally filtered by a path regex, returning matches with surrounding-line snippets.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Literal substring to search for (minimum 3 bytes)",
				},
				"file_regex": map[string]interface{}{
					"type":        "string",
					"description": "Optional regular expression filtering candidate file paths",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleSearchCode)
}

func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}

	var fileRegex *regexp.Regexp
	if pattern := request.GetString("file_regex", ""); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid file_regex: %v", err)), nil
		}
		fileRegex = re
	}

	matches, err := query.SearchContent(ctx, s.s, s.root, q, fileRegex)
	switch {
	case err == sferrors.ErrQueryTooShort:
		return mcp.NewToolResultError(err.Error()), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(matches) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}

	text := ""
	for _, m := range matches {
		text += fmt.Sprintf("%s:%d\n%s\n\n", m.Path, m.LineNo, m.Snippet)
	}
	return mcp.NewToolResultText(text), nil
}

// ServeStdio blocks serving JSON-RPC requests over stdin/stdout until
// the context is cancelled or the transport errors.
func (s *Server) ServeStdio(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(s.mcp)
	}()

	select {
	case <-ctx.Done():
		return s.s.Close()
	case err := <-serverErr:
		closeErr := s.s.Close()
		if err != nil {
			return err
		}
		return closeErr
	}
}
