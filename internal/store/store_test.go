// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

import (
	"context"
	"testing"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_CreateGetUpdatePreferencesAddRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.CreateSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if sess.Preferences != nil {
		t.Errorf("new session should have nil preferences, got %+v", sess.Preferences)
	}
	if len(sess.RepoIDs) != 0 {
		t.Errorf("new session should have no repos, got %v", sess.RepoIDs)
	}

	updated, err := s.UpdatePreferences(ctx, "sess-1", model.Preferences{Provider: "openai", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("UpdatePreferences() error: %v", err)
	}
	if updated.Preferences == nil || updated.Preferences.Provider != "openai" {
		t.Errorf("Preferences = %+v, want provider=openai", updated.Preferences)
	}

	if err := s.AddRepoToSession(ctx, "sess-1", "repo-1"); err != nil {
		t.Fatalf("AddRepoToSession() error: %v", err)
	}
	if err := s.AddRepoToSession(ctx, "sess-1", "repo-1"); err != nil {
		t.Fatalf("AddRepoToSession() (dup) error: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if len(got.RepoIDs) != 1 || got.RepoIDs[0] != "repo-1" {
		t.Errorf("RepoIDs = %v, want exactly one deduped entry", got.RepoIDs)
	}
}

func TestSession_GetMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	if !errs.OfKind(err, errs.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestRepository_CreateGetUpdateStatusAndOverview(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	repo := &model.Repository{RepoID: "repo-1", SourceURL: "https://github.com/acme/widgets"}
	if err := s.CreateRepository(ctx, repo); err != nil {
		t.Fatalf("CreateRepository() error: %v", err)
	}

	if err := s.UpdateRepositoryStatus(ctx, "repo-1", model.RepoProcessing, ""); err != nil {
		t.Fatalf("UpdateRepositoryStatus() error: %v", err)
	}
	if err := s.UpdateRepositoryFileCount(ctx, "repo-1", 12); err != nil {
		t.Fatalf("UpdateRepositoryFileCount() error: %v", err)
	}
	if err := s.UpdateRepositoryOverview(ctx, "repo-1", "a widget library", []float32{0.1, 0.2}); err != nil {
		t.Fatalf("UpdateRepositoryOverview() error: %v", err)
	}
	tree := map[string]*model.TreeNode{"widget.go": {Path: "widget.go", Type: "file"}}
	histogram := map[string]int{"go": 1}
	if err := s.UpdateRepositoryTree(ctx, "repo-1", tree, histogram); err != nil {
		t.Fatalf("UpdateRepositoryTree() error: %v", err)
	}

	got, err := s.GetRepository(ctx, "repo-1")
	if err != nil {
		t.Fatalf("GetRepository() error: %v", err)
	}
	if got.Status != model.RepoProcessing {
		t.Errorf("Status = %q, want processing", got.Status)
	}
	if got.FileCount != 12 {
		t.Errorf("FileCount = %d, want 12", got.FileCount)
	}
	if got.Overview != "a widget library" {
		t.Errorf("Overview = %q", got.Overview)
	}
	if len(got.OverviewEmbedding) != 2 {
		t.Errorf("OverviewEmbedding = %v, want 2 components", got.OverviewEmbedding)
	}
	if len(got.FileTree) != 1 {
		t.Errorf("FileTree = %v, want one entry", got.FileTree)
	}
	if got.LanguagesHistogram["go"] != 1 {
		t.Errorf("LanguagesHistogram = %v, want go:1", got.LanguagesHistogram)
	}
}

func TestFile_UpsertIsIdempotentByRepoAndPath(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f := &model.File{RepoID: "repo-1", Path: "widget.go", Language: "go", Content: "package widgets"}
	if err := s.UpsertFile(ctx, f); err != nil {
		t.Fatalf("UpsertFile() error: %v", err)
	}
	firstID := f.FileID

	f2 := &model.File{RepoID: "repo-1", Path: "widget.go", Language: "go", Content: "package widgets\n\nfunc New() {}"}
	if err := s.UpsertFile(ctx, f2); err != nil {
		t.Fatalf("UpsertFile() (update) error: %v", err)
	}
	if f2.FileID != firstID {
		t.Errorf("FileID changed across upserts: %q vs %q", f2.FileID, firstID)
	}

	files, err := s.ListFiles(ctx, "repo-1")
	if err != nil {
		t.Fatalf("ListFiles() error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("len(files) = %d, want 1 (upsert must not duplicate)", len(files))
	}
	if files[0].Content != f2.Content {
		t.Errorf("Content = %q, want the second upsert's content", files[0].Content)
	}
}

func TestFile_GetByPathAndFindFunctionByName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f := &model.File{
		RepoID: "repo-1", Path: "widget.go", Language: "go", Content: "package widgets",
		Functions: []model.Function{{Name: "New", Signature: "func New() *Widget"}},
	}
	if err := s.UpsertFile(ctx, f); err != nil {
		t.Fatalf("UpsertFile() error: %v", err)
	}

	got, err := s.GetFileByPath(ctx, "repo-1", "widget.go")
	if err != nil {
		t.Fatalf("GetFileByPath() error: %v", err)
	}
	if got.FileID != f.FileID {
		t.Errorf("FileID = %q, want %q", got.FileID, f.FileID)
	}

	files, fns, err := s.FindFunctionByName(ctx, "repo-1", "New")
	if err != nil {
		t.Fatalf("FindFunctionByName() error: %v", err)
	}
	if len(files) != 1 || len(fns) != 1 {
		t.Fatalf("FindFunctionByName() = (%d files, %d fns), want 1 and 1", len(files), len(fns))
	}
	if fns[0].Name != "New" {
		t.Errorf("Function.Name = %q, want New", fns[0].Name)
	}
}

func TestTask_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task := &model.Task{TaskID: "task-1", Kind: model.TaskProcessFiles, Status: model.TaskPending}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}

	if err := s.SetTaskInProgress(ctx, "task-1"); err != nil {
		t.Fatalf("SetTaskInProgress() error: %v", err)
	}
	if err := s.UpsertTaskProgress(ctx, "task-1", model.Progress{CurrentStep: model.StepParsing, ProcessedFiles: 3, TotalFiles: 10}); err != nil {
		t.Fatalf("UpsertTaskProgress() error: %v", err)
	}

	got, err := s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if got.Status != model.TaskInProgress {
		t.Errorf("Status = %q, want in_progress", got.Status)
	}
	if got.Progress.ProcessedFiles != 3 || got.Progress.TotalFiles != 10 {
		t.Errorf("Progress = %+v, want processed=3 total=10", got.Progress)
	}

	if err := s.CompleteTask(ctx, "task-1"); err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}
	got, err = s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if got.Status != model.TaskCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
}

func TestTask_Fail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task := &model.Task{TaskID: "task-2", Kind: model.TaskProcessFiles, Status: model.TaskPending}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if err := s.FailTask(ctx, "task-2", "boom"); err != nil {
		t.Fatalf("FailTask() error: %v", err)
	}

	got, err := s.GetTask(ctx, "task-2")
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if got.Status != model.TaskFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Error != "boom" {
		t.Errorf("Error = %q, want boom", got.Error)
	}
}

func TestConversation_FindOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c1, err := s.FindOrCreateConversation(ctx, "sess-1", "repo-1", "be concise", "a title seed")
	if err != nil {
		t.Fatalf("FindOrCreateConversation() error: %v", err)
	}
	c2, err := s.FindOrCreateConversation(ctx, "sess-1", "repo-1", "be concise", "a different seed")
	if err != nil {
		t.Fatalf("FindOrCreateConversation() (second call) error: %v", err)
	}
	if c1.ConversationID != c2.ConversationID {
		t.Errorf("ConversationID changed across calls: %q vs %q", c1.ConversationID, c2.ConversationID)
	}
	if c2.Title != "a title seed" {
		t.Errorf("Title = %q, want the first call's seed preserved", c2.Title)
	}
}

func TestConversation_FindWithoutCreateIsNotFound(t *testing.T) {
	_, err := newTestStore(t).FindConversation(context.Background(), "sess-1", "repo-1")
	if !errs.OfKind(err, errs.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestMessage_AppendAssignsContiguousSequenceNumbers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.FindOrCreateConversation(ctx, "sess-1", "repo-1", "", "seed")
	if err != nil {
		t.Fatalf("FindOrCreateConversation() error: %v", err)
	}

	for i, role := range []model.MessageRole{"user", "assistant", "user"} {
		m := &model.Message{MessageID: conv.ConversationID + "-" + string(rune('a'+i)), ConversationID: conv.ConversationID, Role: role, Content: "msg"}
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage() error: %v", err)
		}
		if m.SequenceNumber != i+1 {
			t.Errorf("SequenceNumber = %d, want %d", m.SequenceNumber, i+1)
		}
	}

	msgs, err := s.LastMessages(ctx, conv.ConversationID, 2)
	if err != nil {
		t.Fatalf("LastMessages() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].SequenceNumber != 2 || msgs[1].SequenceNumber != 3 {
		t.Errorf("msgs = %+v, want ascending sequence 2 then 3", msgs)
	}

	got, err := s.GetConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation() error: %v", err)
	}
	if got.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", got.MessageCount)
	}
}

func TestLockConversation_ReturnsSameMutexForSameID(t *testing.T) {
	s := newTestStore(t)
	l1 := s.LockConversation("conv-1")
	l2 := s.LockConversation("conv-1")
	if l1 != l2 {
		t.Errorf("LockConversation() returned different mutexes for the same conversation id")
	}
}
