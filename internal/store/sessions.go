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

// CreateSession inserts a new Session with nil preferences and no
// repositories, per spec §6's sessions/init contract.
func (s *Store) CreateSession(ctx context.Context, sessionID string) (*model.Session, error) {
	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, preferences_json, repo_ids_json, created_at, updated_at) VALUES (?, NULL, '[]', ?, ?)`,
		sessionID, now, now,
	)
	if err != nil {
		return nil, errs.NewInternal("create session", err)
	}
	return s.GetSession(ctx, sessionID)
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, preferences_json, repo_ids_json, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID)

	var sess model.Session
	var prefsJSON sql.NullString
	var repoIDsJSON string
	var createdAt, updatedAt string
	if err := row.Scan(&sess.SessionID, &prefsJSON, &repoIDsJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NewNotFound(fmt.Sprintf("session %s not found", sessionID))
		}
		return nil, errs.NewInternal("get session", err)
	}
	if prefsJSON.Valid {
		var p model.Preferences
		unmarshalJSON(prefsJSON.String, &p)
		sess.Preferences = &p
	}
	unmarshalJSON(repoIDsJSON, &sess.RepoIDs)
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

// UpdatePreferences overwrites a Session's preferences, per the
// PATCH .../preferences endpoint.
func (s *Store) UpdatePreferences(ctx context.Context, sessionID string, prefs model.Preferences) (*model.Session, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET preferences_json = ?, updated_at = ? WHERE session_id = ?`,
		marshalJSON(prefs), nowRFC3339(), sessionID,
	)
	if err != nil {
		return nil, errs.NewInternal("update preferences", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.NewNotFound(fmt.Sprintf("session %s not found", sessionID))
	}
	return s.GetSession(ctx, sessionID)
}

// AddRepoToSession appends repoID to a Session's repo_ids, keeping
// the list unique.
func (s *Store) AddRepoToSession(ctx context.Context, sessionID, repoID string) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, id := range sess.RepoIDs {
		if id == repoID {
			return nil
		}
	}
	sess.RepoIDs = append(sess.RepoIDs, repoID)
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET repo_ids_json = ?, updated_at = ? WHERE session_id = ?`,
		marshalJSON(sess.RepoIDs), nowRFC3339(), sessionID,
	)
	if err != nil {
		return errs.NewInternal("update session repo_ids", err)
	}
	return nil
}
