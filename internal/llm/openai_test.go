// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		want    string
		wantErr bool
	}{
		{"explicit base url wins", Credentials{Provider: "openai", BaseURL: "https://example.test"}, "https://example.test", false},
		{"known provider", Credentials{Provider: "groq"}, "https://api.groq.com/openai/v1", false},
		{"unknown provider", Credentials{Provider: "nonsense"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveBaseURL(tt.creds)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func sseServer(t *testing.T, lines []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				t.Fatalf("write SSE line: %v", err)
			}
		}
	}))
}

func TestOpenAICompatibleClient_Chat_StreamsContentDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":", world"},"finish_reason":"stop"}]}`,
		"[DONE]",
	})
	defer srv.Close()

	c := NewOpenAICompatibleClient(4, nil)
	events, err := c.Chat(context.Background(), Credentials{Provider: "openai", BaseURL: srv.URL, APIKey: "sk-test"}, ChatRequest{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	var content string
	var finishSeen bool
	for ev := range events {
		switch ev.Kind {
		case EventContentDelta:
			content += ev.ContentDelta
		case EventFinish:
			finishSeen = true
			if ev.FinishReason != FinishStop {
				t.Errorf("FinishReason = %q, want stop", ev.FinishReason)
			}
		}
	}
	if content != "Hello, world" {
		t.Errorf("content = %q, want %q", content, "Hello, world")
	}
	if !finishSeen {
		t.Errorf("expected a finish event")
	}
}

func TestOpenAICompatibleClient_Chat_AccumulatesToolCallArguments(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"search_code","arguments":"{\"qu"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ery\":\"widget\"}"}}]},"finish_reason":"tool_calls"}]}`,
	})
	defer srv.Close()

	c := NewOpenAICompatibleClient(4, nil)
	events, err := c.Chat(context.Background(), Credentials{Provider: "openai", BaseURL: srv.URL, APIKey: "sk-test"}, ChatRequest{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	var gotToolCall bool
	for ev := range events {
		if ev.Kind == EventToolCallRequest {
			gotToolCall = true
			if ev.ToolCallName != "search_code" {
				t.Errorf("ToolCallName = %q, want search_code", ev.ToolCallName)
			}
			if ev.ToolCallArguments != `{"query":"widget"}` {
				t.Errorf("ToolCallArguments = %q, want the fully accumulated JSON", ev.ToolCallArguments)
			}
		}
	}
	if !gotToolCall {
		t.Fatalf("expected a tool_call_request event")
	}
}

func TestOpenAICompatibleClient_Chat_MapsUnauthorizedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(4, nil)
	events, err := c.Chat(context.Background(), Credentials{Provider: "openai", BaseURL: srv.URL, APIKey: "bad-key"}, ChatRequest{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	ev := <-events
	if ev.Kind != EventError || ev.ErrorKind != "unauthorized_llm" {
		t.Errorf("event = %+v, want an unauthorized_llm error", ev)
	}
}

func TestMapErrorKind(t *testing.T) {
	tests := map[string]string{
		"unauthorized_llm": "unauthorized_llm",
		"rate_limited_llm": "rate_limited_llm",
		"llm_failure":      "llm_failure",
		"something_else":   "internal",
	}
	for in, want := range tests {
		if got := string(mapErrorKind(in)); got != want {
			t.Errorf("mapErrorKind(%q) = %q, want %q", in, got, want)
		}
	}
}
