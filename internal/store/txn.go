// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/morganforge/sourcefast/internal/sferrors"
	"github.com/morganforge/sourcefast/internal/trigram"
)

// Txn is a single writer transaction. Posting updates are batched: every
// UpsertFile/DeleteFile call touching a trigram loads that trigram's
// bitmap at most once per transaction and accumulates bit-sets/clears in
// memory, flushing one read-modify-write per dirtied trigram at Commit.
type Txn struct {
	store  *Store
	tx     *sql.Tx
	dirty  map[trigram.T]*Bitmap
	loaded map[trigram.T]bool
}

// Begin acquires exclusive write access, waiting up to the store's
// lock timeout before failing with sferrors.ErrBusy.
func (s *Store) Begin(ctx context.Context) (*Txn, error) {
	acquired := make(chan struct{})
	go func() {
		s.writeMu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(s.lockTimeout):
		go func() { <-acquired; s.writeMu.Unlock() }()
		return nil, sferrors.ErrBusy
	case <-ctx.Done():
		go func() { <-acquired; s.writeMu.Unlock() }()
		return nil, fmt.Errorf("%w: %v", sferrors.ErrCancelled, ctx.Err())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	return &Txn{
		store:  s,
		tx:     tx,
		dirty:  make(map[trigram.T]*Bitmap),
		loaded: make(map[trigram.T]bool),
	}, nil
}

func (t *Txn) bitmapFor(tg trigram.T) (*Bitmap, error) {
	if bm, ok := t.dirty[tg]; ok {
		return bm, nil
	}
	var blob []byte
	err := t.tx.QueryRow("SELECT bitmap FROM postings WHERE trigram = ?", uint32(tg)).Scan(&blob)
	switch {
	case err == sql.ErrNoRows:
		bm := NewBitmap()
		t.dirty[tg] = bm
		t.loaded[tg] = true
		return bm, nil
	case err != nil:
		return nil, err
	}
	bm, err := decodeBitmap(blob)
	if err != nil {
		return nil, err
	}
	t.dirty[tg] = bm
	t.loaded[tg] = true
	return bm, nil
}

// UpsertFile inserts or updates the file record identified by path,
// recomputing its posting contributions. For an existing file every
// trigram it previously contributed to has fileID cleared first (read
// via the trigram_set reverse mapping stored on the row, never by
// re-reading the file), then fileID is set for every trigram in the new
// set.
func (t *Txn) UpsertFile(path string, mtime, size int64, hash []byte, trigrams []trigram.T) (uint32, error) {
	var fileID uint32
	var oldSetBlob []byte
	err := t.tx.QueryRow("SELECT id, trigram_set FROM files WHERE path = ?", path).Scan(&fileID, &oldSetBlob)

	switch {
	case err == sql.ErrNoRows:
		newSet := encodeTrigramSet(trigrams)
		res, insertErr := t.tx.Exec(
			"INSERT INTO files (path, mtime, size, content_hash, trigram_set) VALUES (?, ?, ?, ?, ?)",
			path, mtime, size, hash, newSet,
		)
		if insertErr != nil {
			return 0, insertErr
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return 0, idErr
		}
		fileID = uint32(id)

	case err != nil:
		return 0, err

	default:
		for _, old := range decodeTrigramSet(oldSetBlob) {
			bm, bmErr := t.bitmapFor(old)
			if bmErr != nil {
				return 0, bmErr
			}
			bm.Remove(fileID)
		}
		newSet := encodeTrigramSet(trigrams)
		if _, updErr := t.tx.Exec(
			"UPDATE files SET mtime = ?, size = ?, content_hash = ?, trigram_set = ? WHERE id = ?",
			mtime, size, hash, newSet, fileID,
		); updErr != nil {
			return 0, updErr
		}
	}

	for _, tg := range trigrams {
		bm, bmErr := t.bitmapFor(tg)
		if bmErr != nil {
			return 0, bmErr
		}
		bm.Add(fileID)
	}

	return fileID, nil
}

// DeleteFile removes the file record at path and clears its fileID from
// every posting it contributed to. Returns existed=false if there was no
// such row (a no-op, not an error).
func (t *Txn) DeleteFile(path string) (bool, error) {
	var fileID uint32
	var oldSetBlob []byte
	err := t.tx.QueryRow("SELECT id, trigram_set FROM files WHERE path = ?", path).Scan(&fileID, &oldSetBlob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, old := range decodeTrigramSet(oldSetBlob) {
		bm, bmErr := t.bitmapFor(old)
		if bmErr != nil {
			return false, bmErr
		}
		bm.Remove(fileID)
	}

	if _, err := t.tx.Exec("DELETE FROM files WHERE id = ?", fileID); err != nil {
		return false, err
	}
	return true, nil
}

// SetMeta upserts a metadata key/value pair within the transaction.
func (t *Txn) SetMeta(key, value string) error {
	_, err := t.tx.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// Commit flushes all dirtied posting bitmaps (deleting any that became
// empty, per the "empty bitmaps must be deleted" invariant) and commits
// the underlying transaction. Either everything becomes visible, or
// nothing does.
func (t *Txn) Commit() error {
	defer t.store.writeMu.Unlock()

	for tg, bm := range t.dirty {
		if bm.IsEmpty() {
			if _, err := t.tx.Exec("DELETE FROM postings WHERE trigram = ?", uint32(tg)); err != nil {
				t.tx.Rollback()
				return err
			}
			continue
		}
		blob, err := encodeBitmap(bm)
		if err != nil {
			t.tx.Rollback()
			return err
		}
		if _, err := t.tx.Exec(
			"INSERT INTO postings (trigram, bitmap) VALUES (?, ?) ON CONFLICT(trigram) DO UPDATE SET bitmap = excluded.bitmap",
			uint32(tg), blob,
		); err != nil {
			t.tx.Rollback()
			return err
		}
	}
	return t.tx.Commit()
}

// Abort rolls back the transaction, leaving the store at its exact
// pre-pass state. Safe to call after a partial apply or on cancellation.
func (t *Txn) Abort() error {
	defer t.store.writeMu.Unlock()
	return t.tx.Rollback()
}

func encodeTrigramSet(ts []trigram.T) []byte {
	buf := make([]byte, 4*len(ts))
	for i, tg := range ts {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(tg))
	}
	return buf
}

func decodeTrigramSet(blob []byte) []trigram.T {
	n := len(blob) / 4
	out := make([]trigram.T, n)
	for i := 0; i < n; i++ {
		out[i] = trigram.T(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
