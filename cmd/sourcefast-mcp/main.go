// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command sourcefast-mcp exposes the indexing engine as a JSON-RPC-over-
// stdio Model Context Protocol server: one tool, search_code. stdout is
// reserved entirely for the wire protocol; diagnostics go to stderr or
// SOURCEFAST_LOG_PATH.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/morganforge/sourcefast/internal/config"
	"github.com/morganforge/sourcefast/internal/rpcserver"
	"github.com/morganforge/sourcefast/internal/sflog"
)

func main() {
	root := flag.String("root", ".", "repository root to serve search_code against")
	flag.Parse()

	closer, err := sflog.InitServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "log init: %v\n", err)
		os.Exit(2)
	}
	defer closer.Close()

	cfg, err := config.Load(*root)
	if err != nil {
		sflog.Error("load config: %v", err)
		os.Exit(2)
	}

	srv, err := rpcserver.New(*root, cfg)
	if err != nil {
		sflog.Error("start server: %v", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sflog.Printf("sourcefast-mcp serving stdio for root %s", *root)
	if err := srv.ServeStdio(ctx); err != nil {
		sflog.Error("server error: %v", err)
		os.Exit(2)
	}
}
