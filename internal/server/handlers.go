// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/model"
)

type sessionResponse struct {
	SessionID    string             `json:"session_id"`
	Preferences  *model.Preferences `json:"preferences"`
	Repositories []string           `json:"repositories"`
	CreatedAt    time.Time          `json:"created_at"`
}

func sessionView(sess *model.Session) sessionResponse {
	return sessionResponse{
		SessionID: sess.SessionID, Preferences: sess.Preferences,
		Repositories: sess.RepoIDs, CreatedAt: sess.CreatedAt,
	}
}

// POST /api/sessions/init
func (s *Server) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.CreateSession(r.Context(), uuid.NewString())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

// GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

type preferencesRequest struct {
	AIProvider        string `json:"ai_provider"`
	AIModel           string `json:"ai_model"`
	EmbeddingProvider string `json:"embedding_provider,omitempty"`
	EmbeddingModel    string `json:"embedding_model,omitempty"`
	Theme             string `json:"theme,omitempty"`
}

// PATCH /api/sessions/{id}/preferences
func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AIProvider == "" || req.AIModel == "" {
		writeError(w, errs.NewInvalidInput("ai_provider and ai_model are required", nil))
		return
	}
	prefs := model.Preferences{
		Provider: req.AIProvider, Model: req.AIModel,
		EmbeddingProvider: req.EmbeddingProvider, EmbeddingModel: req.EmbeddingModel,
		Theme: req.Theme,
	}
	sess, err := s.store.UpdatePreferences(r.Context(), r.PathValue("id"), prefs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

type createRepositoryRequest struct {
	SessionID  string `json:"session_id"`
	GithubURL  string `json:"github_url"`
}

type repositoryMetadata struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Description   string `json:"description,omitempty"`
}

type createRepositoryResponse struct {
	RepoID   string             `json:"repo_id"`
	TaskID   string             `json:"task_id"`
	Status   model.RepoStatus   `json:"status"`
	Metadata repositoryMetadata `json:"metadata"`
}

// POST /api/repositories/
func (s *Server) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	var req createRepositoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" || req.GithubURL == "" {
		writeError(w, errs.NewInvalidInput("session_id and github_url are required", nil))
		return
	}

	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	md, err := s.host.Metadata(ctx, req.GithubURL)
	if err != nil {
		writeError(w, err)
		return
	}

	chatCreds, err := s.resolveChatCredentials(sess)
	if err != nil {
		writeError(w, err)
		return
	}
	embedCreds, err := s.resolveEmbedCredentials(sess)
	if err != nil {
		writeError(w, err)
		return
	}

	taskID := uuid.NewString()
	task := &model.Task{
		TaskID: taskID, Kind: model.TaskProcessFiles, Status: model.TaskPending,
		Progress: model.Progress{CurrentStep: model.StepQueued},
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		writeError(w, err)
		return
	}

	repo := &model.Repository{
		RepoID: uuid.NewString(), SessionID: req.SessionID, SourceURL: req.GithubURL,
		Owner: md.Owner, Name: md.Name, DefaultBranch: md.DefaultBranch,
		Status: model.RepoFetched, TaskID: taskID,
	}
	if err := s.store.CreateRepository(ctx, repo); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.AddRepoToSession(ctx, req.SessionID, repo.RepoID); err != nil {
		writeError(w, err)
		return
	}

	go func() {
		if err := s.pipe.Run(backgroundCtx(), task, repo, chatCreds, embedCreds); err != nil {
			s.logger.Error("pipeline.run.failed", "repo_id", repo.RepoID, "err", err)
		}
	}()

	writeJSON(w, http.StatusOK, createRepositoryResponse{
		RepoID: repo.RepoID, TaskID: taskID, Status: repo.Status,
		Metadata: repositoryMetadata{Owner: md.Owner, Name: md.Name, DefaultBranch: md.DefaultBranch, Description: md.Description},
	})
}

// GET /api/repositories/{repo_id}
func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request) {
	repo, err := s.store.GetRepository(r.Context(), r.PathValue("repo_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// GET /api/repositories/{repo_id}/tree
func (s *Server) handleGetRepositoryTree(w http.ResponseWriter, r *http.Request) {
	repo, err := s.store.GetRepository(r.Context(), r.PathValue("repo_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file_tree": repo.FileTree})
}

// GET /api/repositories/{repo_id}/file?path=...
func (s *Server) handleGetRepositoryFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, errs.NewInvalidInput("path query parameter is required", nil))
		return
	}
	f, err := s.store.GetFileByPath(r.Context(), r.PathValue("repo_id"), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// GET /api/tasks/{task_id}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type currentConversationResponse struct {
	Conversation  *model.Conversation `json:"conversation"`
	Messages      []*model.Message    `json:"messages"`
	TotalMessages int                 `json:"total_messages"`
}

// GET /api/conversations/current?session_id=&repo_id=&limit=
func (s *Server) handleCurrentConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	repoID := r.URL.Query().Get("repo_id")
	if sessionID == "" || repoID == "" {
		writeError(w, errs.NewInvalidInput("session_id and repo_id query parameters are required", nil))
		return
	}
	limit := historyWindowDefault
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	ctx := r.Context()
	conv, err := s.store.FindConversation(ctx, sessionID, repoID)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := s.store.LastMessages(ctx, conv.ConversationID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, currentConversationResponse{
		Conversation: conv, Messages: messages, TotalMessages: conv.MessageCount,
	})
}

const historyWindowDefault = 20
