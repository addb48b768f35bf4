// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"context"
	"testing"

	"github.com/cartograph/cartograph/internal/embed"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/search"
	"github.com/cartograph/cartograph/internal/store"
)

// scriptedChatClient replays one llm.Event stream per call to Chat,
// advancing through turns so a test can simulate a tool-call round
// followed by a final answer.
type scriptedChatClient struct {
	turns [][]llm.Event
	call  int
}

func (c *scriptedChatClient) SummarizeFile(ctx context.Context, creds llm.Credentials, language, content string, structural llm.StructuralRecord) (string, []llm.ChunkDescription, error) {
	return "", nil, nil
}

func (c *scriptedChatClient) Overview(ctx context.Context, creds llm.Credentials, repoName string, topFileSummaries []llm.FileSummary) (string, error) {
	return "", nil
}

func (c *scriptedChatClient) Chat(ctx context.Context, creds llm.Credentials, req llm.ChatRequest) (<-chan llm.Event, error) {
	turn := c.turns[c.call]
	if c.call < len(c.turns)-1 {
		c.call++
	}
	ch := make(chan llm.Event, len(turn))
	for _, ev := range turn {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestEngine(t *testing.T, chat llm.Client) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	embedder := embed.NewGenerator(fakeVectorProvider{vec: []float32{1, 0, 0}}, 2, nil)
	se := search.New(s, embedder)
	return New(s, se, chat, NewRegistry(), nil), s
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestEngine_Query_EmptyTextIsInvalidInput(t *testing.T) {
	e, s := newTestEngine(t, &scriptedChatClient{})
	repo := &model.Repository{RepoID: "repo-1", Name: "widgets"}
	if err := s.CreateRepository(context.Background(), repo); err != nil {
		t.Fatalf("CreateRepository() error: %v", err)
	}
	_, err := e.Query(context.Background(), "sess-1", repo, "   ", llm.Credentials{})
	if err == nil {
		t.Fatalf("expected an error for an empty query")
	}
}

func TestEngine_Query_SimpleAnswerWithoutToolCalls(t *testing.T) {
	chat := &scriptedChatClient{turns: [][]llm.Event{
		{
			{Kind: llm.EventContentDelta, ContentDelta: "Widgets are "},
			{Kind: llm.EventContentDelta, ContentDelta: "small reusable components."},
			{Kind: llm.EventFinish, FinishReason: llm.FinishStop},
		},
	}}
	e, s := newTestEngine(t, chat)
	repo := &model.Repository{RepoID: "repo-1", Name: "widgets"}
	if err := s.CreateRepository(context.Background(), repo); err != nil {
		t.Fatalf("CreateRepository() error: %v", err)
	}

	events, err := e.Query(context.Background(), "sess-1", repo, "what are widgets?", llm.Credentials{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	var content string
	var done bool
	for _, ev := range drain(events) {
		switch ev.Kind {
		case EventAnswerChunk:
			content += ev.Content
		case EventDone:
			done = true
		}
	}
	if !done {
		t.Fatalf("expected a done event")
	}
	if content != "Widgets are small reusable components." {
		t.Errorf("content = %q", content)
	}

	conv, err := s.FindConversation(context.Background(), "sess-1", "repo-1")
	if err != nil {
		t.Fatalf("FindConversation() error: %v", err)
	}
	if conv.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2 (user + assistant)", conv.MessageCount)
	}
}

func TestEngine_Query_ToolCallRoundThenFinalAnswer(t *testing.T) {
	chat := &scriptedChatClient{turns: [][]llm.Event{
		{
			{Kind: llm.EventToolCallRequest, ToolCallID: "call_1", ToolCallName: "get_repo_overview", ToolCallArguments: "{}"},
			{Kind: llm.EventFinish, FinishReason: llm.FinishToolCalls},
		},
		{
			{Kind: llm.EventContentDelta, ContentDelta: "Based on the overview, widgets is a toolkit."},
			{Kind: llm.EventFinish, FinishReason: llm.FinishStop},
		},
	}}
	e, s := newTestEngine(t, chat)
	repo := &model.Repository{RepoID: "repo-1", Name: "widgets", Overview: "widgets is a toolkit"}
	if err := s.CreateRepository(context.Background(), repo); err != nil {
		t.Fatalf("CreateRepository() error: %v", err)
	}

	events, err := e.Query(context.Background(), "sess-1", repo, "what is this repo?", llm.Credentials{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	var sawToolCall, sawToolResult, sawDone bool
	var toolCallsOnDone []model.ToolCall
	for _, ev := range drain(events) {
		switch ev.Kind {
		case EventToolCall:
			sawToolCall = true
			if ev.Tool != "get_repo_overview" {
				t.Errorf("Tool = %q, want get_repo_overview", ev.Tool)
			}
		case EventToolResult:
			sawToolResult = true
		case EventDone:
			sawDone = true
			toolCallsOnDone = ev.ToolCalls
		}
	}
	if !sawToolCall || !sawToolResult || !sawDone {
		t.Fatalf("sawToolCall=%v sawToolResult=%v sawDone=%v", sawToolCall, sawToolResult, sawDone)
	}
	if len(toolCallsOnDone) != 1 {
		t.Errorf("toolCallsOnDone = %+v, want 1 recorded tool call", toolCallsOnDone)
	}

	conv, err := s.FindConversation(context.Background(), "sess-1", "repo-1")
	if err != nil {
		t.Fatalf("FindConversation() error: %v", err)
	}
	if conv.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2 (user + final assistant; tool turns aren't persisted)", conv.MessageCount)
	}
}

func TestEngine_Query_StreamErrorPersistsTruncatedMessage(t *testing.T) {
	chat := &scriptedChatClient{turns: [][]llm.Event{
		{
			{Kind: llm.EventContentDelta, ContentDelta: "partial answer"},
			{Kind: llm.EventError, ErrorMessage: "upstream disconnected"},
		},
	}}
	e, s := newTestEngine(t, chat)
	repo := &model.Repository{RepoID: "repo-1", Name: "widgets"}
	if err := s.CreateRepository(context.Background(), repo); err != nil {
		t.Fatalf("CreateRepository() error: %v", err)
	}

	events, err := e.Query(context.Background(), "sess-1", repo, "hello", llm.Credentials{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	var sawError bool
	for _, ev := range drain(events) {
		if ev.Kind == EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected an error event")
	}

	conv, err := s.FindConversation(context.Background(), "sess-1", "repo-1")
	if err != nil {
		t.Fatalf("FindConversation() error: %v", err)
	}
	if conv.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2 (user + truncated assistant)", conv.MessageCount)
	}
}
