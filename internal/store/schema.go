// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

// SchemaVersion is the compiled schema version. The store refuses to open
// a database stamped with any other value; the Indexer's recovery path is
// to drop and recreate (see OpenOrRecreate).
const SchemaVersion = 1

// schemaDDL creates the four logical tables of the data model: files,
// postings, meta, and the leader table used by the writer-lease
// mechanism (a supplement over the core single-writer-transaction
// discipline, for coordinating multiple processes that might each try to
// start a pass against the same tree).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	path          TEXT UNIQUE NOT NULL,
	mtime         INTEGER NOT NULL,
	size          INTEGER NOT NULL,
	content_hash  BLOB NOT NULL,
	trigram_set   BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS postings (
	trigram INTEGER PRIMARY KEY,
	bitmap  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS leader (
	name          TEXT PRIMARY KEY,
	holder        TEXT NOT NULL,
	expires_at_ms INTEGER NOT NULL
);
`
