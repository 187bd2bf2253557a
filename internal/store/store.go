// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the persistent backing for the trigram index: an
// embedded relational store (modernc.org/sqlite, pure Go, no cgo) holding
// the files/postings/meta/leader tables and exposing transactional batch
// upsert and delete. See Txn for the write path and Store's read methods
// for lookups used by the query evaluator.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/morganforge/sourcefast/internal/sferrors"
	"github.com/morganforge/sourcefast/internal/trigram"
)

// FileRecord is a row of the files table.
type FileRecord struct {
	ID          uint32
	Path        string
	Mtime       int64
	Size        int64
	ContentHash []byte
}

// Store owns the single *sql.DB handle for a <root>/.source_fast/index.db
// file and serializes writers through writeMu, with the connection pool
// pinned to a single connection via SetMaxOpenConns(1).
type Store struct {
	db          *sql.DB
	path        string
	lockTimeout time.Duration

	writeMu sync.Mutex
}

// Open opens (or creates) the database at path. If the database is brand
// new, the schema is initialized and stamped with SchemaVersion. If it
// already exists with a different schema_version, Open returns
// sferrors.ErrSchemaMismatch without modifying the file — callers that
// want automatic recovery should use OpenOrRecreate.
func Open(path string, lockTimeout time.Duration) (*Store, error) {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", lockTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path, lockTimeout: lockTimeout}

	// A brand-new database file has no meta table yet.
	var metaTable string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'meta'").Scan(&metaTable)
	if err == sql.ErrNoRows {
		if err := s.initSchema(); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", sferrors.ErrCorrupt, err)
	}

	version, ok, err := s.rawMeta("schema_version")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", sferrors.ErrCorrupt, err)
	}
	if !ok {
		if err := s.initSchema(); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	}

	n, err := strconv.Atoi(version)
	if err != nil || n != SchemaVersion {
		db.Close()
		return nil, sferrors.ErrSchemaMismatch
	}
	return s, nil
}

// OpenOrRecreate opens path, and if the schema is missing/mismatched or
// the database fails its integrity check, deletes the database (and any
// WAL/SHM sidecar files) and recreates it from scratch. This is the
// Indexer's standard recovery path when the store reports ErrCorrupt.
func OpenOrRecreate(path string, lockTimeout time.Duration) (*Store, error) {
	s, err := Open(path, lockTimeout)
	switch {
	case err == nil:
		if integrityErr := s.checkIntegrity(); integrityErr != nil {
			s.Close()
			if rmErr := removeDBFiles(path); rmErr != nil {
				return nil, rmErr
			}
			return Open(path, lockTimeout)
		}
		return s, nil
	case errors.Is(err, sferrors.ErrSchemaMismatch) || errors.Is(err, sferrors.ErrCorrupt):
		if rmErr := removeDBFiles(path); rmErr != nil {
			return nil, rmErr
		}
		return Open(path, lockTimeout)
	default:
		return nil, err
	}
}

func removeDBFiles(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *Store) checkIntegrity() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", sferrors.ErrCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", sferrors.ErrCorrupt, result)
	}
	return nil
}

func (s *Store) initSchema() error {
	for _, stmt := range strings.Split(schemaDDL, ";\n\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)", strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("stamp schema_version: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database file.
func (s *Store) Path() string { return s.path }

// rawMeta reads a meta key without going through a Txn; used during Open
// before any transaction machinery exists.
func (s *Store) rawMeta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// GetMeta returns a repository metadata value.
func (s *Store) GetMeta(key string) (string, bool, error) {
	return s.rawMeta(key)
}

// FileByPath looks up a single file record by its canonical path.
func (s *Store) FileByPath(path string) (*FileRecord, bool, error) {
	row := s.db.QueryRow("SELECT id, path, mtime, size, content_hash FROM files WHERE path = ?", path)
	var rec FileRecord
	if err := row.Scan(&rec.ID, &rec.Path, &rec.Mtime, &rec.Size, &rec.ContentHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &rec, true, nil
}

// FilesByIDs resolves file ids to records, preserving no particular
// order; callers sort by path themselves.
func (s *Store) FilesByIDs(ids []uint32) ([]FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := fmt.Sprintf("SELECT id, path, mtime, size, content_hash FROM files WHERE id IN (%s)", strings.Join(placeholders, ","))
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Mtime, &rec.Size, &rec.ContentHash); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LookupTrigram fetches the posting bitmap for a trigram, if any.
func (s *Store) LookupTrigram(t trigram.T) (*Bitmap, bool, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT bitmap FROM postings WHERE trigram = ?", uint32(t)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	bm, err := decodeBitmap(blob)
	if err != nil {
		return nil, false, err
	}
	return bm, true, nil
}

// SearchPathsLike returns every file path containing substr, ASCII
// case-folded, sorted lexicographically. The safe default documented in
// the design notes is ASCII-only case folding, not Unicode case folding.
func (s *Store) SearchPathsLike(substr string) ([]string, error) {
	pattern := "%" + escapeLike(strings.ToLower(substr)) + "%"
	rows, err := s.db.Query("SELECT path FROM files WHERE LOWER(path) LIKE ? ESCAPE '\\'", pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

// AllPaths returns every indexed path, used by the full-scan Planner path
// to compute which files must be deleted.
func (s *Store) AllPaths() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TryAcquireWriterLease attempts to take (or confirm existing ownership
// of) the named writer lease for ttl. This layers above the
// transaction-level single-writer discipline: it decides who may call
// Begin at all when multiple processes (the CLI indexer and a
// background reindex triggered from the stdio server) could race to
// start a pass against the same tree.
func (s *Store) TryAcquireWriterLease(name, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	expires := now + ttl.Milliseconds()

	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO leader (name, holder, expires_at_ms) VALUES (?, ?, ?)",
		name, holder, expires,
	); err != nil {
		return false, err
	}

	res, err := s.db.Exec(
		"UPDATE leader SET holder = ?, expires_at_ms = ? WHERE name = ? AND (expires_at_ms < ? OR holder = ?)",
		holder, expires, name, now, holder,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RenewWriterLease extends an already-held lease; it fails silently
// (returns false) if the caller no longer holds it.
func (s *Store) RenewWriterLease(name, holder string, ttl time.Duration) (bool, error) {
	return s.TryAcquireWriterLease(name, holder, ttl)
}

// RewritePathPrefix bulk-rewrites files.path when a repository directory
// is relocated without its contents changing, avoiding a full reindex.
func (s *Store) RewritePathPrefix(ctx context.Context, oldPrefix, newPrefix string) error {
	oldPrefix = strings.TrimSuffix(oldPrefix, "/") + "/"
	newPrefix = strings.TrimSuffix(newPrefix, "/") + "/"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id, path FROM files WHERE path LIKE ? ESCAPE '\\'", escapeLike(oldPrefix)+"%")
	if err != nil {
		return err
	}
	type idPath struct {
		id   uint32
		path string
	}
	var toUpdate []idPath
	for rows.Next() {
		var ip idPath
		if err := rows.Scan(&ip.id, &ip.path); err != nil {
			rows.Close()
			return err
		}
		toUpdate = append(toUpdate, ip)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ip := range toUpdate {
		newPath := newPrefix + strings.TrimPrefix(ip.path, oldPrefix)
		if _, err := tx.Exec("UPDATE files SET path = ? WHERE id = ?", newPath, ip.id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
