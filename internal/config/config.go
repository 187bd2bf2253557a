// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable of the indexing engine: store location,
// classifier thresholds, concurrency limits, and the ignore list the
// Change Planner's walker applies in addition to VCS ignore rules.
type Config struct {
	// DatabasePath is the embedded store file, relative to RootPath
	// unless absolute.
	DatabasePath string `toml:"database_path"`

	// MaxFileSizeBytes is S_max: files larger than this are classified
	// Binary regardless of content.
	MaxFileSizeBytes int64 `toml:"max_file_size_bytes"`

	// ProbeSizeBytes is S_probe: the classifier reads at most this many
	// bytes when it must sniff a file's content.
	ProbeSizeBytes int64 `toml:"probe_size_bytes"`

	// LockTimeout is T_lock: how long Store.Begin waits for the writer
	// lock before failing with ErrBusy.
	LockTimeout time.Duration `toml:"-"`
	LockTimeoutMillis int64 `toml:"lock_timeout_ms"`

	// Workers bounds the indexing worker pool's fan-out. Zero means
	// "use runtime.NumCPU()".
	Workers int `toml:"workers"`

	// MaxOpenFiles bounds the file-descriptor semaphore used while
	// reading candidate files during an index pass.
	MaxOpenFiles int `toml:"max_open_files"`

	// IgnorePatterns is a compiled-in-addition-to-VCS deny list of glob
	// patterns, matched against repository-relative paths.
	IgnorePatterns []string `toml:"ignore_patterns"`

	// WatchDebounce coalesces bursts of filesystem notifications into a
	// single reindex trigger.
	WatchDebounce time.Duration `toml:"-"`
	WatchDebounceMillis int64 `toml:"watch_debounce_ms"`

	// RootPath is the absolute path of the indexed repository. Not
	// read from the TOML file; always set by Load/DefaultConfig.
	RootPath string `toml:"-"`
}

// DefaultConfig returns the built-in defaults for a repository rooted at
// root.
func DefaultConfig(root string) *Config {
	return &Config{
		DatabasePath:        filepath.Join(".source_fast", "index.db"),
		MaxFileSizeBytes:    4 << 20, // 4 MiB
		ProbeSizeBytes:      8 << 10, // 8 KiB
		LockTimeout:         5 * time.Second,
		LockTimeoutMillis:   5000,
		Workers:             0,
		MaxOpenFiles:        128,
		IgnorePatterns:      []string{".git/", "*.bak", "*.swp", "*~"},
		WatchDebounce:       300 * time.Millisecond,
		WatchDebounceMillis: 300,
		RootPath:            root,
	}
}

// Load assembles a Config for root: defaults, overlaid with
// <root>/.source_fast/config.toml if it exists, overlaid with
// SOURCEFAST_* environment variables. The result is validated before
// being returned.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig(root)

	tomlPath := filepath.Join(root, ".source_fast", "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		if _, err := toml.DecodeFile(tomlPath, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", tomlPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", tomlPath, err)
	}

	cfg.RootPath = root
	cfg.applyEnvOverrides()
	cfg.resolveDurations()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) resolveDurations() {
	c.LockTimeout = time.Duration(c.LockTimeoutMillis) * time.Millisecond
	c.WatchDebounce = time.Duration(c.WatchDebounceMillis) * time.Millisecond
}

// applyEnvOverrides overlays SOURCEFAST_* environment variables on top
// of whatever defaults/TOML produced.
func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("SOURCEFAST_DATABASE_PATH"); ok {
		c.DatabasePath = v
	}
	if v, ok := envInt64("SOURCEFAST_MAX_FILE_SIZE_BYTES"); ok {
		c.MaxFileSizeBytes = v
	}
	if v, ok := envInt64("SOURCEFAST_PROBE_SIZE_BYTES"); ok {
		c.ProbeSizeBytes = v
	}
	if v, ok := envInt64("SOURCEFAST_LOCK_TIMEOUT_MS"); ok {
		c.LockTimeoutMillis = v
	}
	if v, ok := envInt("SOURCEFAST_WORKERS"); ok {
		c.Workers = v
	}
	if v, ok := envInt("SOURCEFAST_MAX_OPEN_FILES"); ok {
		c.MaxOpenFiles = v
	}
	if v, ok := envInt64("SOURCEFAST_WATCH_DEBOUNCE_MS"); ok {
		c.WatchDebounceMillis = v
	}
	if v, ok := os.LookupEnv("SOURCEFAST_IGNORE_PATTERNS"); ok && v != "" {
		c.IgnorePatterns = strings.Split(v, ",")
	}
}

func envInt64(key string) (int64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt(key string) (int, bool) {
	n, ok := envInt64(key)
	return int(n), ok
}

// Validate checks that the configuration describes a usable store.
func (c *Config) Validate() error {
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("max_file_size_bytes must be positive, got %d", c.MaxFileSizeBytes)
	}
	if c.ProbeSizeBytes <= 0 || c.ProbeSizeBytes > c.MaxFileSizeBytes {
		return fmt.Errorf("probe_size_bytes must be positive and <= max_file_size_bytes")
	}
	if c.LockTimeoutMillis <= 0 {
		return fmt.Errorf("lock_timeout_ms must be positive, got %d", c.LockTimeoutMillis)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.MaxOpenFiles <= 0 {
		return fmt.Errorf("max_open_files must be positive, got %d", c.MaxOpenFiles)
	}
	if c.RootPath == "" {
		return fmt.Errorf("root path must be set")
	}
	return nil
}

// AbsDatabasePath resolves DatabasePath against RootPath.
func (c *Config) AbsDatabasePath() string {
	if filepath.IsAbs(c.DatabasePath) {
		return c.DatabasePath
	}
	return filepath.Join(c.RootPath, c.DatabasePath)
}
