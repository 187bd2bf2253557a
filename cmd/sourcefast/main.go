// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command sourcefast is the CLI front end for the trigram indexing
// engine: index a repository and search its indexed content or paths.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/morganforge/sourcefast/internal/config"
	"github.com/morganforge/sourcefast/internal/indexer"
	"github.com/morganforge/sourcefast/internal/query"
	"github.com/morganforge/sourcefast/internal/report"
	"github.com/morganforge/sourcefast/internal/sferrors"
	"github.com/morganforge/sourcefast/internal/sflog"
	"github.com/morganforge/sourcefast/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return sferrors.ExitUserErr
	}

	closer, err := sflog.InitCLI()
	if err != nil {
		fmt.Fprintf(os.Stderr, "log init: %v\n", err)
		return sferrors.ExitInternal
	}
	defer closer.Close()

	switch args[0] {
	case "index":
		return runIndex(args[1:])
	case "search":
		return runSearch(args[1:])
	case "paths":
		return runPaths(args[1:])
	default:
		printUsage()
		return sferrors.ExitUserErr
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: sourcefast <command> [flags]

commands:
  index  [-root .] [-rebuild]          index a repository
  search [-root .] [-regex PATTERN] Q  search content for Q
  paths  [-root .] SUBSTR              search indexed paths`)
}

func runIndex(args []string) int {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	root := fs.String("root", ".", "repository root")
	rebuild := fs.Bool("rebuild", false, "force a full rescan instead of the VCS-aware fast path")
	if err := fs.Parse(args); err != nil {
		return sferrors.ExitUserErr
	}

	cfg, err := config.Load(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return sferrors.ExitInternal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan indexer.Event, 16)
	rep := report.New(os.Stdout)
	done := make(chan struct{})
	go func() {
		rep.Watch(events)
		close(done)
	}()

	runReport, err := indexer.Run(ctx, *root, cfg, events, *rebuild)
	<-done

	if err != nil {
		if errors.Is(err, sferrors.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "interrupted; index left at its pre-pass state")
			return sferrors.ExitInterrupted
		}
		fmt.Fprintf(os.Stderr, "index failed: %v\n", err)
		return sferrors.ExitCode(err)
	}

	fmt.Printf("reindexed=%d deleted=%d skipped=%d\n", runReport.Reindexed, runReport.Deleted, runReport.Skipped)
	return sferrors.ExitSuccess
}

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	root := fs.String("root", ".", "repository root")
	pattern := fs.String("regex", "", "optional path-regex filter")
	if err := fs.Parse(args); err != nil {
		return sferrors.ExitUserErr
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "search requires exactly one query argument")
		return sferrors.ExitUserErr
	}
	q := fs.Arg(0)

	var fileRegex *regexp.Regexp
	if *pattern != "" {
		re, err := regexp.Compile(*pattern)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid regex: %v\n", err)
			return sferrors.ExitUserErr
		}
		fileRegex = re
	}

	cfg, err := config.Load(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return sferrors.ExitInternal
	}
	s, err := store.Open(cfg.AbsDatabasePath(), cfg.LockTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return sferrors.ExitInternal
	}
	defer s.Close()

	matches, err := query.SearchContent(context.Background(), s, *root, q, fileRegex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
		return sferrors.ExitCode(err)
	}

	for _, m := range matches {
		fmt.Printf("%s:%d\n%s\n\n", m.Path, m.LineNo, m.Snippet)
	}
	return sferrors.ExitSuccess
}

func runPaths(args []string) int {
	fs := flag.NewFlagSet("paths", flag.ContinueOnError)
	root := fs.String("root", ".", "repository root")
	if err := fs.Parse(args); err != nil {
		return sferrors.ExitUserErr
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "paths requires exactly one substring argument")
		return sferrors.ExitUserErr
	}

	cfg, err := config.Load(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return sferrors.ExitInternal
	}
	s, err := store.Open(cfg.AbsDatabasePath(), cfg.LockTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return sferrors.ExitInternal
	}
	defer s.Close()

	paths, err := query.SearchPaths(s, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "path search failed: %v\n", err)
		return sferrors.ExitInternal
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return sferrors.ExitSuccess
}
