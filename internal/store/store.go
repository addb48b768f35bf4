// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package store is the document store of spec §3/§4.I: SQLite with
// FTS5 for lexical search and a Go-side cosine-similarity fallback
// for vector search, since no native vector extension is assumed
// (spec §1). Grounded on modernc.org/sqlite (pure-Go, CGO-free, used
// by Ekats-Mycelica and dshills-gocontext-mcp) and on
// dshills-gocontext-mcp's internal/storage/vector_ops.go
// searchVectorFallback/searchText split, which this package adapts
// wholesale since no sqlite-vec-equivalent extension is wired here.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection pool. Transactions are not required
// for ingestion writes (they are key-addressed idempotent upserts);
// Message writes are serialized per-conversation by the caller
// (internal/query) holding an in-process lock, per spec §5.
type Store struct {
	db        *sql.DB
	convLocks conversationLocks
}

// Open opens (creating if necessary) the SQLite database at uri and
// applies the schema.
func Open(ctx context.Context, uri string) (*Store, error) {
	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline avoids SQLITE_BUSY
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	preferences_json TEXT,
	repo_ids_json TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS repositories (
	repo_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	source_url TEXT NOT NULL,
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	default_branch TEXT NOT NULL,
	file_tree_json TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	task_id TEXT,
	file_count INTEGER NOT NULL DEFAULT 0,
	languages_histogram_json TEXT NOT NULL DEFAULT '{}',
	overview TEXT,
	overview_embedding_json TEXT,
	error TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_repositories_session ON repositories(session_id);

CREATE TABLE IF NOT EXISTS files (
	file_id TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL,
	path TEXT NOT NULL,
	filename TEXT NOT NULL,
	language TEXT,
	content TEXT NOT NULL DEFAULT '',
	size INTEGER NOT NULL DEFAULT 0,
	parsed INTEGER NOT NULL DEFAULT 0,
	embedded INTEGER NOT NULL DEFAULT 0,
	functions_json TEXT NOT NULL DEFAULT '[]',
	classes_json TEXT NOT NULL DEFAULT '[]',
	imports_json TEXT NOT NULL DEFAULT '[]',
	dependencies_json TEXT NOT NULL DEFAULT '{}',
	chunks_json TEXT NOT NULL DEFAULT '[]',
	summary TEXT,
	summary_vector_json TEXT,
	provider_meta_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(repo_id, path)
);
CREATE INDEX IF NOT EXISTS idx_files_repo ON files(repo_id);

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
	file_id UNINDEXED,
	repo_id UNINDEXED,
	path,
	summary,
	chunk_text,
	code -- rows are deleted and re-inserted by reindexFileFTS on every file write
);

CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	total_files INTEGER NOT NULL DEFAULT 0,
	processed_files INTEGER NOT NULL DEFAULT 0,
	current_step TEXT NOT NULL DEFAULT 'queued',
	error TEXT,
	result TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	title TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(session_id, repo_id)
);

CREATE TABLE IF NOT EXISTS messages (
	message_id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	tool_calls_json TEXT,
	sequence_number INTEGER NOT NULL,
	provider_meta_json TEXT NOT NULL DEFAULT '{}',
	timestamp TEXT NOT NULL,
	UNIQUE(conversation_id, sequence_number)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sequence_number);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalJSON[T any](s string, dst *T) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), dst)
}
