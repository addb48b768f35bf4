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

// CreateTask inserts a new Task with the Status and CurrentStep the
// caller set on t (the create-repository handler passes pending/queued).
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, kind, status, total_files, processed_files, current_step, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.Kind, t.Status, t.Progress.TotalFiles, t.Progress.ProcessedFiles, t.Progress.CurrentStep, now, now,
	)
	if err != nil {
		return errs.NewInternal("create task", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT task_id, kind, status, total_files, processed_files, current_step, error, result, created_at, updated_at
		 FROM tasks WHERE task_id = ?`, taskID)

	var t model.Task
	var errStr, result sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.TaskID, &t.Kind, &t.Status, &t.Progress.TotalFiles, &t.Progress.ProcessedFiles,
		&t.Progress.CurrentStep, &errStr, &result, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NewNotFound(fmt.Sprintf("task %s not found", taskID))
		}
		return nil, errs.NewInternal("get task", err)
	}
	t.Error = errStr.String
	t.Result = result.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// UpsertTaskProgress idempotently writes a Task's progress and
// current step, keyed by task_id, per spec §4.I. Reads reflect the
// latest write immediately; the 500ms coalescing window is enforced
// by the caller (internal/concurrency.Coalescer), not here.
func (s *Store) UpsertTaskProgress(ctx context.Context, taskID string, progress model.Progress) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET total_files = ?, processed_files = ?, current_step = ?, updated_at = ? WHERE task_id = ?`,
		progress.TotalFiles, progress.ProcessedFiles, progress.CurrentStep, nowRFC3339(), taskID,
	)
	if err != nil {
		return errs.NewInternal("upsert task progress", err)
	}
	return nil
}

// FailTask marks a Task failed with an error and freezes its step, per
// spec invariant 5.
func (s *Store) FailTask(ctx context.Context, taskID, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error = ?, updated_at = ? WHERE task_id = ?`,
		model.TaskFailed, errMsg, nowRFC3339(), taskID,
	)
	if err != nil {
		return errs.NewInternal("fail task", err)
	}
	return nil
}

// CompleteTask marks a Task completed.
func (s *Store) CompleteTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, current_step = ?, updated_at = ? WHERE task_id = ?`,
		model.TaskCompleted, model.StepCompleted, nowRFC3339(), taskID,
	)
	if err != nil {
		return errs.NewInternal("complete task", err)
	}
	return nil
}

// SetTaskInProgress marks a Task in_progress, called once at
// ingestion start.
func (s *Store) SetTaskInProgress(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`,
		model.TaskInProgress, nowRFC3339(), taskID,
	)
	if err != nil {
		return errs.NewInternal("set task in_progress", err)
	}
	return nil
}
