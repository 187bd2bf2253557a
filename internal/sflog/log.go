// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sflog provides the standard library-backed logger used across
// the indexing engine and its collaborators. There are two initializers,
// matched to the two ways this engine is run: InitCLI for an interactive
// one-shot command, InitServer for the stdio JSON-RPC server, where
// stdout is reserved for the wire protocol and must never carry a stray
// log line.
package sflog

import (
	"io"
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

// InitCLI points the logger at stderr (or SOURCEFAST_LOG_PATH, if set),
// leaving stdout free for the command's own report output.
func InitCLI() (io.Closer, error) {
	return initCommon()
}

// InitServer is identical to InitCLI today, but is kept as a distinct
// entry point because the two modes have historically diverged on
// whether stdout is reachable at all; the stdio server must never
// consider it an option, even by accident in a future change.
func InitServer() (io.Closer, error) {
	return initCommon()
}

func initCommon() (io.Closer, error) {
	path := os.Getenv("SOURCEFAST_LOG_PATH")
	if path == "" {
		std = log.New(os.Stderr, "", log.LstdFlags)
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	std = log.New(f, "", log.LstdFlags)
	return f, nil
}

// Printf logs a formatted message.
func Printf(format string, args ...any) { std.Printf(format, args...) }

// Println logs a message.
func Println(args ...any) { std.Println(args...) }

// Warn logs at a visually distinct "warn" level; the stdlib logger has
// no level concept, so this is purely a message prefix convention.
func Warn(format string, args ...any) { std.Printf("WARN "+format, args...) }

// Error logs at a visually distinct "error" level.
func Error(format string, args ...any) { std.Printf("ERROR "+format, args...) }
