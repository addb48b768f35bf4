// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cartograph/cartograph/internal/concurrency"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/metrics"
)

// baseURLByProvider is the bit-exact table from spec §6.
var baseURLByProvider = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"fireworks":  "https://api.fireworks.ai/inference/v1",
	"together":   "https://api.together.xyz/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"grok":       "https://api.x.ai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// DefaultModelFor returns a reasonable default model per provider,
// used when a Session names a provider but no model (SPEC_FULL §6
// supplemented feature, grounded in original_source/'s per-provider
// default constants).
func DefaultModelFor(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "fireworks":
		return "accounts/fireworks/models/qwen3-30b"
	case "together":
		return "meta-llama/Llama-3-8b-chat-hf"
	case "groq":
		return "llama-3.1-8b-instant"
	case "grok":
		return "grok-2-latest"
	case "openrouter":
		return "openrouter/auto"
	case "gemini":
		return "gemini-1.5-flash"
	default:
		return ""
	}
}

// OpenAICompatibleClient implements Client for every provider sharing
// the chat-completions contract, parameterized by base_url, and
// delegates gemini to a native adapter.
type OpenAICompatibleClient struct {
	httpClient *http.Client
	limiters   map[string]*concurrency.Limiter // keyed by provider+api_key
	logger     *slog.Logger
	gemini     *GeminiClient
	cLLM       int
}

// NewOpenAICompatibleClient builds the dispatching Client, bounding
// concurrent calls per {provider, api_key} pair to cLLM (spec §4.F's
// C_llm, default 6) via one concurrency.Limiter per pair. The limiter
// caps in-flight calls only; it is not a token bucket and does not
// limit the request rate.
func NewOpenAICompatibleClient(cLLM int, logger *slog.Logger) *OpenAICompatibleClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: perCallTimeout},
		limiters:   make(map[string]*concurrency.Limiter),
		logger:     logger,
		gemini:     NewGeminiClient(logger),
		cLLM:       cLLM,
	}
}

func (c *OpenAICompatibleClient) limiterFor(creds Credentials) *concurrency.Limiter {
	key := creds.Provider + "|" + creds.APIKey
	if l, ok := c.limiters[key]; ok {
		return l
	}
	l := concurrency.NewLimiter(c.cLLM)
	c.limiters[key] = l
	return l
}

func resolveBaseURL(creds Credentials) (string, error) {
	if creds.BaseURL != "" {
		return creds.BaseURL, nil
	}
	if u, ok := baseURLByProvider[creds.Provider]; ok {
		return u, nil
	}
	return "", errs.NewInvalidInput(fmt.Sprintf("unknown LLM provider %q", creds.Provider), nil)
}

// chatCompletionsRequest is the wire body for /chat/completions.
type chatCompletionsRequest struct {
	Model    string          `json:"model"`
	Messages []wireMessage   `json:"messages"`
	Tools    []wireTool      `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

func toWireMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Function.Name
			wtc.Function.Arguments = tc.Function.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(defs []ToolDef) []wireTool {
	out := make([]wireTool, 0, len(defs))
	for _, d := range defs {
		wt := wireTool{Type: "function"}
		wt.Function.Name = d.Name
		wt.Function.Description = d.Description
		wt.Function.Parameters = d.Parameters
		out = append(out, wt)
	}
	return out
}

// streamChunk is one SSE "data:" JSON payload from an OpenAI-style
// streaming chat-completions response.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Chat implements the streaming chat-completions call, buffering
// tool-call argument deltas per spec §4.D until finish_reason=tool_calls
// fires, then emitting one tool_call_request per accumulated call.
func (c *OpenAICompatibleClient) Chat(ctx context.Context, creds Credentials, req ChatRequest) (<-chan Event, error) {
	if creds.Provider == "gemini" {
		return c.gemini.Chat(ctx, creds, req)
	}

	baseURL, err := resolveBaseURL(creds)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 16)
	limiter := c.limiterFor(creds)

	go func() {
		defer close(events)
		if err := limiter.Acquire(ctx); err != nil {
			events <- Event{Kind: EventError, ErrorKind: "internal", ErrorMessage: err.Error()}
			return
		}
		defer limiter.Release()

		body := chatCompletionsRequest{
			Model:    req.Model,
			Messages: toWireMessages(req.Messages),
			Tools:    toWireTools(req.Tools),
			Stream:   true,
		}
		payload, _ := json.Marshal(body)

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			events <- Event{Kind: EventError, ErrorKind: "internal", ErrorMessage: err.Error()}
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+creds.APIKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			events <- Event{Kind: EventError, ErrorKind: "llm_failure", ErrorMessage: err.Error()}
			return
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case 401, 403:
			events <- Event{Kind: EventError, ErrorKind: "unauthorized_llm", ErrorMessage: "LLM provider rejected credentials"}
			return
		case 429:
			events <- Event{Kind: EventError, ErrorKind: "rate_limited_llm", ErrorMessage: "LLM provider rate limit"}
			return
		}
		if resp.StatusCode >= 400 {
			events <- Event{Kind: EventError, ErrorKind: "llm_failure", ErrorMessage: fmt.Sprintf("provider returned %d", resp.StatusCode)}
			return
		}

		type pendingCall struct {
			id, name string
			args     strings.Builder
		}
		pending := make(map[int]*pendingCall)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}
			var chunk streamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				events <- Event{Kind: EventContentDelta, ContentDelta: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				p, ok := pending[tc.Index]
				if !ok {
					p = &pendingCall{}
					pending[tc.Index] = p
				}
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason != "" {
				reason := FinishStop
				if choice.FinishReason == "tool_calls" {
					reason = FinishToolCalls
					for i := 0; i < len(pending); i++ {
						p := pending[i]
						if p == nil {
							continue
						}
						events <- Event{
							Kind:              EventToolCallRequest,
							ToolCallID:        p.id,
							ToolCallName:      p.name,
							ToolCallArguments: p.args.String(),
						}
					}
				}
				events <- Event{Kind: EventFinish, FinishReason: reason}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			events <- Event{Kind: EventError, ErrorKind: "llm_failure", ErrorMessage: err.Error()}
			return
		}
		events <- Event{Kind: EventFinish, FinishReason: FinishStop}
	}()

	return events, nil
}

// SummarizeFile implements 4.D operation 1 as a single non-streaming
// chat call whose response is parsed into a summary plus one
// ChunkDescription per function/class named in the structural record.
func (c *OpenAICompatibleClient) SummarizeFile(ctx context.Context, creds Credentials, language, content string, structural StructuralRecord) (string, []ChunkDescription, error) {
	prompt := buildSummarizePrompt(language, content, structural)
	text, err := c.complete(ctx, creds, prompt)
	if err != nil {
		return "", nil, err
	}
	summary, descriptions := parseSummaryResponse(text, structural)
	return summary, descriptions, nil
}

// Overview implements 4.D operation 2.
func (c *OpenAICompatibleClient) Overview(ctx context.Context, creds Credentials, repoName string, topFileSummaries []FileSummary) (string, error) {
	if len(topFileSummaries) == 0 {
		return fmt.Sprintf("%s is an empty repository with no text-eligible source files.", repoName), nil
	}
	prompt := buildOverviewPrompt(repoName, topFileSummaries)
	return c.complete(ctx, creds, prompt)
}

// complete runs one non-streaming chat-completions turn, used by the
// summarize and overview operations, retried per spec §4.D's policy:
// up to 3 transport retries, up to 5 rate-limit retries, fatal
// immediately on an unauthorized or otherwise non-retryable response.
func (c *OpenAICompatibleClient) complete(ctx context.Context, creds Credentials, prompt string) (string, error) {
	var out string
	err := concurrency.Retry(ctx, concurrency.DefaultTransportRetry(), concurrency.DefaultRateLimitRetry(),
		func(err error) (bool, bool) {
			if ce, ok := err.(*errs.CartographError); ok {
				switch ce.Kind {
				case errs.KindRateLimitedLLM:
					return true, true
				case errs.KindLLMFailure:
					return true, false
				}
			}
			return false, false
		},
		func(ctx context.Context) error {
			text, cerr := c.completeOnce(ctx, creds, prompt)
			if cerr != nil {
				return cerr
			}
			out = text
			return nil
		},
		metrics.RecordLLMRetry,
	)
	return out, err
}

func (c *OpenAICompatibleClient) completeOnce(ctx context.Context, creds Credentials, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	events, err := c.Chat(ctx, creds, ChatRequest{
		Model:    creds.Model,
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for ev := range events {
		switch ev.Kind {
		case EventContentDelta:
			out.WriteString(ev.ContentDelta)
		case EventError:
			return "", errs.New(mapErrorKind(ev.ErrorKind), ev.ErrorMessage, "", "", nil)
		}
	}
	return out.String(), nil
}

func mapErrorKind(kind string) errs.Kind {
	switch kind {
	case "unauthorized_llm":
		return errs.KindUnauthorizedLLM
	case "rate_limited_llm":
		return errs.KindRateLimitedLLM
	case "llm_failure":
		return errs.KindLLMFailure
	default:
		return errs.KindInternal
	}
}
