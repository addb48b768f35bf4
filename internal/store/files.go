// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

import (
	"context"
	"database/sql"
	"errors"
	"path"
	"strings"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/model"
)

// UpsertFile writes or replaces a File keyed by (repo_id, path), and
// keeps files_fts in sync. All ingestion writes are key-addressed
// idempotent upserts per spec §5.
func (s *Store) UpsertFile(ctx context.Context, f *model.File) error {
	now := nowRFC3339()
	if f.FileID == "" {
		f.FileID = f.RepoID + ":" + f.Path
	}
	if f.Filename == "" {
		f.Filename = path.Base(f.Path)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (file_id, repo_id, path, filename, language, content, size, parsed, embedded,
			functions_json, classes_json, imports_json, dependencies_json, chunks_json,
			summary, summary_vector_json, provider_meta_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			language = excluded.language,
			content = excluded.content,
			size = excluded.size,
			parsed = excluded.parsed,
			embedded = excluded.embedded,
			functions_json = excluded.functions_json,
			classes_json = excluded.classes_json,
			imports_json = excluded.imports_json,
			dependencies_json = excluded.dependencies_json,
			chunks_json = excluded.chunks_json,
			summary = excluded.summary,
			summary_vector_json = excluded.summary_vector_json,
			provider_meta_json = excluded.provider_meta_json,
			updated_at = excluded.updated_at
	`,
		f.FileID, f.RepoID, f.Path, f.Filename, f.Language, f.Content, f.Size, boolToInt(f.Parsed), boolToInt(f.Embedded),
		marshalJSON(f.Functions), marshalJSON(f.Classes), marshalJSON(f.Imports), marshalJSON(f.Dependencies),
		marshalJSON(f.Chunks), nullIfEmpty(f.Summary), marshalJSON(f.SummaryVector), marshalJSON(f.ProviderMeta),
		now, now,
	)
	if err != nil {
		return errs.NewInternal("upsert file", err)
	}

	if err := s.reindexFileFTS(ctx, f); err != nil {
		return err
	}
	return nil
}

func (s *Store) reindexFileFTS(ctx context.Context, f *model.File) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files_fts WHERE file_id = ?`, f.FileID); err != nil {
		return errs.NewInternal("clear fts row", err)
	}
	var chunkTexts, codes []string
	for _, c := range f.Chunks {
		chunkTexts = append(chunkTexts, c.ChunkText)
		codes = append(codes, c.Code)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files_fts (file_id, repo_id, path, summary, chunk_text, code) VALUES (?, ?, ?, ?, ?, ?)`,
		f.FileID, f.RepoID, f.Path, f.Summary, strings.Join(chunkTexts, "\n"), strings.Join(codes, "\n"),
	)
	if err != nil {
		return errs.NewInternal("index fts row", err)
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, fileID string) (*model.File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_id, repo_id, path, filename, language, content, size, parsed, embedded,
			functions_json, classes_json, imports_json, dependencies_json, chunks_json,
			summary, summary_vector_json, provider_meta_json, created_at, updated_at
		FROM files WHERE file_id = ?`, fileID)
	return scanFile(row)
}

func (s *Store) GetFileByPath(ctx context.Context, repoID, p string) (*model.File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_id, repo_id, path, filename, language, content, size, parsed, embedded,
			functions_json, classes_json, imports_json, dependencies_json, chunks_json,
			summary, summary_vector_json, provider_meta_json, created_at, updated_at
		FROM files WHERE repo_id = ? AND path = ?`, repoID, p)
	return scanFile(row)
}

func (s *Store) ListFiles(ctx context.Context, repoID string) ([]*model.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, repo_id, path, filename, language, content, size, parsed, embedded,
			functions_json, classes_json, imports_json, dependencies_json, chunks_json,
			summary, summary_vector_json, provider_meta_json, created_at, updated_at
		FROM files WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, errs.NewInternal("list files", err)
	}
	defer rows.Close()

	var out []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FindFunctionByName does an exact name match across every File of a
// Repository, per 4.H's find_function tool.
func (s *Store) FindFunctionByName(ctx context.Context, repoID, name string) ([]*model.File, []model.Function, error) {
	files, err := s.ListFiles(ctx, repoID)
	if err != nil {
		return nil, nil, err
	}
	var matchFiles []*model.File
	var matchFns []model.Function
	for _, f := range files {
		for _, fn := range f.Functions {
			if fn.Name == name {
				matchFiles = append(matchFiles, f)
				matchFns = append(matchFns, fn)
			}
		}
	}
	return matchFiles, matchFns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*model.File, error) {
	var f model.File
	var language, summary sql.NullString
	var functionsJSON, classesJSON, importsJSON, depsJSON, chunksJSON, providerMetaJSON string
	var summaryVectorJSON sql.NullString
	var parsedInt, embeddedInt int
	var createdAt, updatedAt string

	err := row.Scan(&f.FileID, &f.RepoID, &f.Path, &f.Filename, &language, &f.Content, &f.Size,
		&parsedInt, &embeddedInt, &functionsJSON, &classesJSON, &importsJSON, &depsJSON, &chunksJSON,
		&summary, &summaryVectorJSON, &providerMetaJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NewNotFound("file not found")
		}
		return nil, errs.NewInternal("scan file", err)
	}

	f.Language = language.String
	f.Summary = summary.String
	f.Parsed = parsedInt != 0
	f.Embedded = embeddedInt != 0
	unmarshalJSON(functionsJSON, &f.Functions)
	unmarshalJSON(classesJSON, &f.Classes)
	unmarshalJSON(importsJSON, &f.Imports)
	unmarshalJSON(depsJSON, &f.Dependencies)
	unmarshalJSON(chunksJSON, &f.Chunks)
	unmarshalJSON(providerMetaJSON, &f.ProviderMeta)
	if summaryVectorJSON.Valid {
		unmarshalJSON(summaryVectorJSON.String, &f.SummaryVector)
	}
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
