// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/model"
)

// CreateRepository inserts a new Repository with the Status the caller
// set on r (the create-repository handler passes status=fetched).
func (s *Store) CreateRepository(ctx context.Context, r *model.Repository) error {
	now := nowRFC3339()
	r.CreatedAt = parseTime(now)
	r.UpdatedAt = parseTime(now)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories
			(repo_id, session_id, source_url, owner, name, default_branch, file_tree_json,
			 status, task_id, file_count, languages_histogram_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RepoID, r.SessionID, r.SourceURL, r.Owner, r.Name, r.DefaultBranch,
		marshalJSON(r.FileTree), r.Status, r.TaskID, r.FileCount, marshalJSON(r.LanguagesHistogram),
		now, now,
	)
	if err != nil {
		return errs.NewInternal("create repository", err)
	}
	return nil
}

func (s *Store) GetRepository(ctx context.Context, repoID string) (*model.Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT repo_id, session_id, source_url, owner, name, default_branch, file_tree_json,
			status, task_id, file_count, languages_histogram_json, overview, overview_embedding_json,
			error, created_at, updated_at
		 FROM repositories WHERE repo_id = ?`, repoID)

	var r model.Repository
	var fileTreeJSON, histJSON string
	var taskID, overview, overviewEmbJSON, repoErr sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&r.RepoID, &r.SessionID, &r.SourceURL, &r.Owner, &r.Name, &r.DefaultBranch,
		&fileTreeJSON, &r.Status, &taskID, &r.FileCount, &histJSON, &overview, &overviewEmbJSON,
		&repoErr, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NewNotFound(fmt.Sprintf("repository %s not found", repoID))
		}
		return nil, errs.NewInternal("get repository", err)
	}
	unmarshalJSON(fileTreeJSON, &r.FileTree)
	unmarshalJSON(histJSON, &r.LanguagesHistogram)
	if overviewEmbJSON.Valid {
		unmarshalJSON(overviewEmbJSON.String, &r.OverviewEmbedding)
	}
	r.TaskID = taskID.String
	r.Overview = overview.String
	r.Error = repoErr.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// UpdateRepositoryStatus enforces spec §3 invariant 6's allowed
// transitions at the call-site (the pipeline orchestrator is the only
// caller and already only issues legal transitions); this just
// persists.
func (s *Store) UpdateRepositoryStatus(ctx context.Context, repoID string, status model.RepoStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET status = ?, error = ?, updated_at = ? WHERE repo_id = ?`,
		status, nullIfEmpty(errMsg), nowRFC3339(), repoID,
	)
	if err != nil {
		return errs.NewInternal("update repository status", err)
	}
	return nil
}

// UpdateRepositoryFileCount sets file_count, per invariant 1.
func (s *Store) UpdateRepositoryFileCount(ctx context.Context, repoID string, count int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET file_count = ?, updated_at = ? WHERE repo_id = ?`,
		count, nowRFC3339(), repoID,
	)
	if err != nil {
		return errs.NewInternal("update repository file_count", err)
	}
	return nil
}

// UpdateRepositoryOverview persists the overview stage's output.
func (s *Store) UpdateRepositoryOverview(ctx context.Context, repoID, overview string, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET overview = ?, overview_embedding_json = ?, updated_at = ? WHERE repo_id = ?`,
		overview, marshalJSON(embedding), nowRFC3339(), repoID,
	)
	if err != nil {
		return errs.NewInternal("update repository overview", err)
	}
	return nil
}

// UpdateRepositoryTree persists the fetch stage's tree and language
// histogram.
func (s *Store) UpdateRepositoryTree(ctx context.Context, repoID string, tree map[string]*model.TreeNode, histogram map[string]int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET file_tree_json = ?, languages_histogram_json = ?, updated_at = ? WHERE repo_id = ?`,
		marshalJSON(tree), marshalJSON(histogram), nowRFC3339(), repoID,
	)
	if err != nil {
		return errs.NewInternal("update repository tree", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
