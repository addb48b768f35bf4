// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package server implements the HTTP surface of spec §6: JSON
// request/response handlers over internal/store, internal/pipeline,
// and internal/query, plus the text/event-stream response of
// POST /api/query/. Grounded on wagneradl-mc-v1/oauth-server/main.go's
// net/http.ServeMux pattern-routing, writeJSON helper, and logging
// middleware, adapted from stdlib log to log/slog per the ambient
// stack, and wired to internal/errs for the {error: {kind, message}}
// envelope instead of ad hoc error maps.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cartograph/cartograph/internal/config"
	"github.com/cartograph/cartograph/internal/embed"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/fetch"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/parse"
	"github.com/cartograph/cartograph/internal/pipeline"
	"github.com/cartograph/cartograph/internal/query"
	"github.com/cartograph/cartograph/internal/search"
	"github.com/cartograph/cartograph/internal/store"
)

// Server wires the persistent store and the ingestion/query
// components behind the route table of spec §6.
type Server struct {
	cfg      config.Config
	store    *store.Store
	host     fetch.HostClient
	parser   *parse.Pool
	chat     llm.Client
	embedder *embed.Generator
	pipe     *pipeline.Orchestrator
	search   *search.Engine
	query    *query.Engine
	logger   *slog.Logger

	mux *http.ServeMux
}

// New builds a Server with its dependency graph already wired:
// fetch/parse/llm/embed feed the pipeline orchestrator, store/search
// feed the query engine.
func New(cfg config.Config, s *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	host := fetch.NewGitHubClient(cfg.Fetch.HostToken, cfg.Concurrency.FetchWorkers, cfg.Fetch.MaxBlobSizeBytes)
	parser := parse.NewPool()
	chat := llm.NewOpenAICompatibleClient(cfg.Concurrency.LLMWorkers, logger)
	embedder := embed.NewGenerator(embed.NewOpenAIProvider(), cfg.Concurrency.EmbedWorkers, logger)
	pipe := pipeline.New(s, host, parser, chat, embedder, cfg.Concurrency.LLMWorkers, logger)
	searchEngine := search.New(s, embedder)
	queryEngine := query.New(s, searchEngine, chat, query.NewRegistry(), logger)

	srv := &Server{
		cfg: cfg, store: s, host: host, parser: parser, chat: chat, embedder: embedder,
		pipe: pipe, search: searchEngine, query: queryEngine, logger: logger,
		mux: http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/sessions/init", s.handleSessionInit)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("PATCH /api/sessions/{id}/preferences", s.handleUpdatePreferences)

	s.mux.HandleFunc("POST /api/repositories/", s.apiKeyGated(s.handleCreateRepository))
	s.mux.HandleFunc("GET /api/repositories/{repo_id}", s.handleGetRepository)
	s.mux.HandleFunc("GET /api/repositories/{repo_id}/tree", s.handleGetRepositoryTree)
	s.mux.HandleFunc("GET /api/repositories/{repo_id}/file", s.handleGetRepositoryFile)

	s.mux.HandleFunc("GET /api/tasks/{task_id}", s.handleGetTask)

	s.mux.HandleFunc("POST /api/query/", s.apiKeyGated(s.handleQuery))
	s.mux.HandleFunc("GET /api/conversations/current", s.handleCurrentConversation)

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the fully-wired http.Handler, logging-middleware
// wrapped, for http.Server.Handler.
func (s *Server) Handler() http.Handler {
	return loggingMiddleware(s.logger, s.mux)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http.request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// apiKeyGated enforces the X-API-Key header spec §6 requires outside
// development; development mode bypasses it entirely.
func (s *Server) apiKeyGated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.IsDevelopment() {
			next(w, r)
			return
		}
		if r.Header.Get("X-API-Key") == "" {
			writeError(w, errs.NewInvalidInput("X-API-Key header is required", nil))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError unwraps err to a *errs.CartographError and writes the
// {error: {kind, message}} envelope at its HTTP status, per spec §7.
func writeError(w http.ResponseWriter, err error) {
	var ce *errs.CartographError
	if !errs.As(err, &ce) {
		ce = errs.NewInternal(err.Error(), err)
	}
	writeJSON(w, ce.HTTPStatus(), ce.ToJSON())
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.NewInvalidInput("malformed JSON body", err)
	}
	return nil
}

// resolveChatCredentials builds the {provider, model, api_key}
// Credentials for a request, per spec §4.D's "Session preferences, or
// development fallback".
func (s *Server) resolveChatCredentials(sess *model.Session) (llm.Credentials, error) {
	prefProvider, prefModel := "", ""
	if sess.Preferences != nil {
		prefProvider, prefModel = sess.Preferences.Provider, sess.Preferences.Model
	}
	return llm.Resolve(prefProvider, prefModel, llm.Fallback{
		Provider: s.cfg.LLM.Provider, Model: s.cfg.LLM.Model, APIKey: s.cfg.LLM.APIKey,
	})
}

func (s *Server) resolveEmbedCredentials(sess *model.Session) (llm.Credentials, error) {
	prefProvider, prefModel := "", ""
	if sess.Preferences != nil {
		prefProvider, prefModel = sess.Preferences.EmbeddingProvider, sess.Preferences.EmbeddingModel
	}
	return llm.Resolve(prefProvider, prefModel, llm.Fallback{
		Provider: s.cfg.LLM.Provider, Model: s.cfg.LLM.Model, APIKey: s.cfg.LLM.APIKey,
	})
}

// backgroundCtx detaches ingestion from the triggering request's
// context: POST /api/repositories/ returns as soon as the Task is
// created, and the pipeline keeps running after the response is sent.
func backgroundCtx() context.Context { return context.Background() }
