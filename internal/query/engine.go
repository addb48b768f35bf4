// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/metrics"
	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/search"
	"github.com/cartograph/cartograph/internal/store"
)

const (
	// historyWindow is the last N persisted Messages loaded into a
	// turn, per spec §4.H step 3.
	historyWindow = 20
	// maxToolIterations bounds the tool loop; the iteration after
	// this one omits tools, forcing a final answer.
	maxToolIterations = 6
	// toolTimeout bounds a single tool call.
	toolTimeout = 10 * time.Second
)

// EventKind distinguishes the SSE-shaped events a turn streams, per
// spec §6: tool_call | tool_result | answer_chunk | done | error.
type EventKind string

const (
	EventToolCall    EventKind = "tool_call"
	EventToolResult  EventKind = "tool_result"
	EventAnswerChunk EventKind = "answer_chunk"
	EventDone        EventKind = "done"
	EventError       EventKind = "error"
)

// Event is one item of the stream Engine.Query returns.
type Event struct {
	Kind EventKind

	Tool        string
	Args        map[string]any
	ResultCount int

	Content string

	Sources   []Source
	ToolCalls []model.ToolCall

	ErrorMessage string
}

// Engine runs the tool-calling conversation loop of spec §4.H over one
// Repository's indexes.
type Engine struct {
	store    *store.Store
	search   *search.Engine
	llm      llm.Client
	registry *Registry
	logger   *slog.Logger
}

// New builds a query Engine.
func New(s *store.Store, se *search.Engine, client llm.Client, registry *Registry, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Engine{store: s, search: se, llm: client, registry: registry, logger: logger}
}

func systemPrompt(repoName string) string {
	return fmt.Sprintf(
		"You are cartograph, an assistant answering questions about the %s repository by reasoning over its "+
			"parsed, summarized, and embedded source. Use the search_code, get_repo_overview, get_file_by_path, "+
			"and find_function tools to ground every answer in what you actually observe; cite the file paths you "+
			"relied on, and never invent a file, function, or behavior you have not seen through a tool result.",
		repoName,
	)
}

// Query runs one conversational turn for (session, repo): it finds or
// creates the Conversation, appends userText as the next Message,
// drives the tool loop, and streams Events on the returned channel
// until the turn reaches a terminal state. The channel is closed when
// the turn ends; callers must drain it.
func (e *Engine) Query(ctx context.Context, sessionID string, repo *model.Repository, userText string, creds llm.Credentials) (<-chan Event, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, errs.NewInvalidInput("query is empty", nil)
	}

	conv, err := e.store.FindOrCreateConversation(ctx, sessionID, repo.RepoID, systemPrompt(repo.Name), userText)
	if err != nil {
		return nil, err
	}

	lock := e.store.LockConversation(conv.ConversationID)
	lock.Lock()

	events := make(chan Event, 16)
	go func() {
		defer lock.Unlock()
		defer close(events)
		e.run(ctx, conv, repo, userText, creds, events)
	}()
	return events, nil
}

func (e *Engine) run(ctx context.Context, conv *model.Conversation, repo *model.Repository, userText string, creds llm.Credentials, events chan<- Event) {
	history, err := e.store.LastMessages(ctx, conv.ConversationID, historyWindow)
	if err != nil {
		events <- errEvent(err)
		return
	}

	userMsg := &model.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conv.ConversationID,
		Role:           model.RoleUser,
		Content:        userText,
	}
	if err := e.store.AppendMessage(ctx, userMsg); err != nil {
		events <- errEvent(err)
		return
	}

	working := make([]llm.Message, 0, len(history)+2)
	working = append(working, llm.Message{Role: "system", Content: conv.SystemPrompt})
	for _, m := range history {
		working = append(working, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	working = append(working, llm.Message{Role: "user", Content: userText})

	toolDefs := e.registry.Defs()

	var answer strings.Builder
	var toolCallsMade []model.ToolCall
	seen := map[string]bool{}
	var orderedSources []Source

	for iteration := 0; ; iteration++ {
		tools := toolDefs
		if iteration >= maxToolIterations {
			tools = nil
		}

		stream, err := e.llm.Chat(ctx, creds, llm.ChatRequest{Model: creds.Model, Messages: working, Tools: tools})
		if err != nil {
			events <- errEvent(err)
			e.persistTruncated(conv, answer.String(), toolCallsMade)
			return
		}

		var turnContent strings.Builder
		var toolRequests []llm.Event
		finishReason := llm.FinishStop
		failed := false

		for ev := range stream {
			switch ev.Kind {
			case llm.EventContentDelta:
				turnContent.WriteString(ev.ContentDelta)
				answer.WriteString(ev.ContentDelta)
				events <- Event{Kind: EventAnswerChunk, Content: ev.ContentDelta}
			case llm.EventToolCallRequest:
				toolRequests = append(toolRequests, ev)
			case llm.EventFinish:
				finishReason = ev.FinishReason
			case llm.EventError:
				events <- Event{Kind: EventError, ErrorMessage: ev.ErrorMessage}
				failed = true
			}
		}

		if failed {
			e.persistTruncated(conv, answer.String(), toolCallsMade)
			return
		}

		if finishReason != llm.FinishToolCalls || len(toolRequests) == 0 {
			metrics.RecordQueryTurn()
			assistantMsg := &model.Message{
				MessageID:      uuid.NewString(),
				ConversationID: conv.ConversationID,
				Role:           model.RoleAssistant,
				Content:        answer.String(),
				ToolCalls:      toolCallsMade,
			}
			if err := e.store.AppendMessage(ctx, assistantMsg); err != nil {
				events <- errEvent(err)
				return
			}
			events <- Event{Kind: EventDone, Sources: orderedSources, ToolCalls: toolCallsMade}
			return
		}

		var wireCalls []llm.ToolCall
		for _, tr := range toolRequests {
			wc := llm.ToolCall{ID: tr.ToolCallID}
			wc.Function.Name = tr.ToolCallName
			wc.Function.Arguments = tr.ToolCallArguments
			wireCalls = append(wireCalls, wc)
			toolCallsMade = append(toolCallsMade, model.ToolCall{
				ID: tr.ToolCallID,
				Function: model.ToolCallFunction{Name: tr.ToolCallName, Arguments: tr.ToolCallArguments},
			})
		}
		working = append(working, llm.Message{Role: "assistant", Content: turnContent.String(), ToolCalls: wireCalls})

		for _, tr := range toolRequests {
			var args map[string]any
			_ = json.Unmarshal([]byte(tr.ToolCallArguments), &args)
			events <- Event{Kind: EventToolCall, Tool: tr.ToolCallName, Args: args}
			metrics.RecordToolCall(tr.ToolCallName)

			result, count, srcs, terr := e.dispatchTool(ctx, repo, creds, tr.ToolCallName, tr.ToolCallArguments)
			var payload any
			if terr != nil {
				payload = map[string]any{"error": terr.Error()}
				count = 0
			} else {
				payload = result
				for _, s := range srcs {
					key := s.FilePath
					if s.LineStart != nil {
						key = fmt.Sprintf("%s:%d", key, *s.LineStart)
					}
					if !seen[key] {
						seen[key] = true
						orderedSources = append(orderedSources, s)
					}
				}
			}
			events <- Event{Kind: EventToolResult, Tool: tr.ToolCallName, ResultCount: count}

			payloadJSON, _ := json.Marshal(payload)
			working = append(working, llm.Message{Role: "tool", Content: string(payloadJSON), ToolCallID: tr.ToolCallID})
		}
	}
}

func (e *Engine) dispatchTool(ctx context.Context, repo *model.Repository, creds llm.Credentials, name, argsJSON string) (any, int, []Source, error) {
	tctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	tc := ToolContext{Ctx: tctx, Store: e.store, Search: e.search, Repo: repo, Creds: creds}
	result, count, srcs, err := e.registry.Dispatch(tc, name, argsJSON)
	if err != nil {
		if tctx.Err() != nil {
			return nil, 0, nil, errs.NewInternal("timeout", tctx.Err())
		}
		return nil, 0, nil, err
	}
	return result, count, srcs, nil
}

// persistTruncated records whatever assistant content accumulated
// before a stream error or client disconnect cut the turn short, per
// spec §7's "LLM stream errors mid-turn... persist truncated=true".
func (e *Engine) persistTruncated(conv *model.Conversation, content string, toolCalls []model.ToolCall) {
	msg := &model.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conv.ConversationID,
		Role:           model.RoleAssistant,
		Content:        content,
		ToolCalls:      toolCalls,
		ProviderMeta:   model.ProviderMeta{Truncated: true},
	}
	if err := e.store.AppendMessage(context.Background(), msg); err != nil {
		e.logger.Warn("query.persist_truncated.failed", "err", err)
	}
}

func errEvent(err error) Event {
	var ce *errs.CartographError
	if errs.As(err, &ce) {
		return Event{Kind: EventError, ErrorMessage: ce.Message}
	}
	return Event{Kind: EventError, ErrorMessage: err.Error()}
}
