// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/query"
)

func decodeSSELine(t *testing.T, body string) map[string]any {
	t.Helper()
	line := strings.TrimPrefix(strings.TrimSpace(body), "data: ")
	var v map[string]any
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		t.Fatalf("decode SSE payload %q: %v", line, err)
	}
	return v
}

func TestWriteSSEEvent_ToolCall(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, query.Event{Kind: query.EventToolCall, Tool: "search_code", Args: map[string]any{"query": "widget"}})
	v := decodeSSELine(t, rec.Body.String())
	if v["type"] != "tool_call" || v["tool"] != "search_code" {
		t.Errorf("payload = %+v", v)
	}
}

func TestWriteSSEEvent_ToolResult(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, query.Event{Kind: query.EventToolResult, Tool: "search_code", ResultCount: 3})
	v := decodeSSELine(t, rec.Body.String())
	if v["type"] != "tool_result" || v["result_count"].(float64) != 3 {
		t.Errorf("payload = %+v", v)
	}
}

func TestWriteSSEEvent_AnswerChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, query.Event{Kind: query.EventAnswerChunk, Content: "hello"})
	v := decodeSSELine(t, rec.Body.String())
	if v["type"] != "answer_chunk" || v["content"] != "hello" {
		t.Errorf("payload = %+v", v)
	}
}

func TestWriteSSEEvent_DoneIncludesSourcesAndToolCalls(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, query.Event{
		Kind:      query.EventDone,
		Sources:   []query.Source{{FilePath: "widget.go"}},
		ToolCalls: []model.ToolCall{{ID: "call_1", Function: model.ToolCallFunction{Name: "search_code", Arguments: `{"query":"widget"}`}}},
	})
	v := decodeSSELine(t, rec.Body.String())
	if v["type"] != "done" {
		t.Fatalf("payload = %+v", v)
	}
	sources, ok := v["sources"].([]any)
	if !ok || len(sources) != 1 {
		t.Errorf("sources = %v", v["sources"])
	}
	toolCalls, ok := v["tool_calls"].([]any)
	if !ok || len(toolCalls) != 1 {
		t.Errorf("tool_calls = %v", v["tool_calls"])
	}
}

func TestWriteSSEEvent_DoneWithNilSourcesEncodesEmptyArray(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, query.Event{Kind: query.EventDone})
	v := decodeSSELine(t, rec.Body.String())
	sources, ok := v["sources"].([]any)
	if !ok || sources == nil {
		t.Errorf("sources = %v, want an empty (not null) array", v["sources"])
	}
}

func TestWriteSSEEvent_Error(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, query.Event{Kind: query.EventError, ErrorMessage: "boom"})
	v := decodeSSELine(t, rec.Body.String())
	if v["type"] != "error" || v["error"] != "boom" {
		t.Errorf("payload = %+v", v)
	}
}
