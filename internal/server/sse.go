// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/query"
)

type queryRequest struct {
	SessionID string `json:"session_id"`
	RepoID    string `json:"repo_id"`
	Query     string `json:"query"`
}

// sseToolCall, sseToolResult, sseAnswerChunk, sseDone, and sseError are
// the wire shapes of spec §6's SSE event types.
type sseToolCall struct {
	Type string         `json:"type"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

type sseToolResult struct {
	Type        string `json:"type"`
	Tool        string `json:"tool"`
	ResultCount int    `json:"result_count"`
}

type sseAnswerChunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type sseDone struct {
	Type      string          `json:"type"`
	Sources   []query.Source  `json:"sources"`
	ToolCalls []toolCallWire  `json:"tool_calls"`
}

type toolCallWire struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type sseError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// POST /api/query/ — streams text/event-stream per spec §6.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" || req.RepoID == "" || req.Query == "" {
		writeError(w, errs.NewInvalidInput("session_id, repo_id, and query are required", nil))
		return
	}

	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	repo, err := s.store.GetRepository(ctx, req.RepoID)
	if err != nil {
		writeError(w, err)
		return
	}
	creds, err := s.resolveChatCredentials(sess)
	if err != nil {
		writeError(w, err)
		return
	}

	events, err := s.query.Query(ctx, req.SessionID, repo, req.Query, creds)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.NewInternal("streaming unsupported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		writeSSEEvent(w, ev)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSEEvent(w http.ResponseWriter, ev query.Event) {
	var payload any
	switch ev.Kind {
	case query.EventToolCall:
		payload = sseToolCall{Type: "tool_call", Tool: ev.Tool, Args: ev.Args}
	case query.EventToolResult:
		payload = sseToolResult{Type: "tool_result", Tool: ev.Tool, ResultCount: ev.ResultCount}
	case query.EventAnswerChunk:
		payload = sseAnswerChunk{Type: "answer_chunk", Content: ev.Content}
	case query.EventDone:
		wire := make([]toolCallWire, 0, len(ev.ToolCalls))
		for _, tc := range ev.ToolCalls {
			w := toolCallWire{ID: tc.ID}
			w.Function.Name = tc.Function.Name
			w.Function.Arguments = tc.Function.Arguments
			wire = append(wire, w)
		}
		sources := ev.Sources
		if sources == nil {
			sources = []query.Source{}
		}
		payload = sseDone{Type: "done", Sources: sources, ToolCalls: wire}
	case query.EventError:
		payload = sseError{Type: "error", Error: ev.ErrorMessage}
	default:
		return
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
