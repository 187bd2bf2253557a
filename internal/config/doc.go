// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the indexing engine:
// sensible defaults, an optional TOML file at <root>/.source_fast/config.toml,
// and environment variable overrides (SOURCEFAST_*).
//
// # Precedence
//
// Configuration is assembled from, in increasing priority:
//   - built-in defaults (DefaultConfig)
//   - <root>/.source_fast/config.toml, if present
//   - SOURCEFAST_* environment variables
//
// # Usage
//
//	cfg, err := config.Load(root)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
