// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// geminiBaseURL is Gemini's provider-native endpoint (spec §6: "gemini
// | provider-native endpoint (separate adapter)").
const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient is the "separate strategy implementation" spec §9
// calls for: Gemini's request/response shape does not fit the
// OpenAI-compatible chat-completions contract, so it gets its own
// wire types and a non-streaming Chat (Gemini's SSE framing differs
// enough from the OpenAI delta format that this adapter buffers the
// full response and emits one content_delta per text part, then finish).
type GeminiClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewGeminiClient(logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{httpClient: &http.Client{}, logger: logger}
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func toGeminiContents(msgs []Message) []geminiContent {
	out := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		if m.Role == "system" {
			// Gemini has no system role in the basic contents array;
			// fold it into a leading user turn.
			role = "user"
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return out
}

// Chat calls Gemini's generateContent endpoint. Tool-calling is not
// wired for Gemini: req.Tools is not sent, so a Session that selects
// gemini gets plain content turns and never a tool_call_request.
func (g *GeminiClient) Chat(ctx context.Context, creds Credentials, req ChatRequest) (<-chan Event, error) {
	events := make(chan Event, 4)
	go func() {
		defer close(events)

		body := geminiRequest{Contents: toGeminiContents(req.Messages)}
		payload, _ := json.Marshal(body)

		url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", geminiBaseURL, creds.Model, creds.APIKey)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			events <- Event{Kind: EventError, ErrorKind: "internal", ErrorMessage: err.Error()}
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			events <- Event{Kind: EventError, ErrorKind: "llm_failure", ErrorMessage: err.Error()}
			return
		}
		defer resp.Body.Close()

		var gr geminiResponse
		if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
			events <- Event{Kind: EventError, ErrorKind: "llm_failure", ErrorMessage: err.Error()}
			return
		}
		if gr.Error != nil {
			kind := "llm_failure"
			if gr.Error.Code == 401 || gr.Error.Code == 403 {
				kind = "unauthorized_llm"
			} else if gr.Error.Code == 429 {
				kind = "rate_limited_llm"
			}
			events <- Event{Kind: EventError, ErrorKind: kind, ErrorMessage: gr.Error.Message}
			return
		}
		if len(gr.Candidates) == 0 {
			events <- Event{Kind: EventFinish, FinishReason: FinishStop}
			return
		}
		for _, part := range gr.Candidates[0].Content.Parts {
			if part.Text != "" {
				events <- Event{Kind: EventContentDelta, ContentDelta: part.Text}
			}
		}
		events <- Event{Kind: EventFinish, FinishReason: FinishStop}
	}()
	return events, nil
}

// SummarizeFile and Overview delegate to the shared complete() helper
// pattern by wrapping Chat directly, since Gemini shares the same
// generic prompt-in/text-out shape for these two operations.
func (g *GeminiClient) SummarizeFile(ctx context.Context, creds Credentials, language, content string, structural StructuralRecord) (string, []ChunkDescription, error) {
	prompt := buildSummarizePrompt(language, content, structural)
	events, err := g.Chat(ctx, creds, ChatRequest{Model: creds.Model, Messages: []Message{{Role: "user", Content: prompt}}})
	if err != nil {
		return "", nil, err
	}
	var text string
	for ev := range events {
		if ev.Kind == EventContentDelta {
			text += ev.ContentDelta
		}
		if ev.Kind == EventError {
			return "", nil, fmt.Errorf("%s: %s", ev.ErrorKind, ev.ErrorMessage)
		}
	}
	summary, descriptions := parseSummaryResponse(text, structural)
	return summary, descriptions, nil
}

func (g *GeminiClient) Overview(ctx context.Context, creds Credentials, repoName string, topFileSummaries []FileSummary) (string, error) {
	if len(topFileSummaries) == 0 {
		return fmt.Sprintf("%s is an empty repository with no text-eligible source files.", repoName), nil
	}
	prompt := buildOverviewPrompt(repoName, topFileSummaries)
	events, err := g.Chat(ctx, creds, ChatRequest{Model: creds.Model, Messages: []Message{{Role: "user", Content: prompt}}})
	if err != nil {
		return "", err
	}
	var text string
	for ev := range events {
		if ev.Kind == EventContentDelta {
			text += ev.ContentDelta
		}
		if ev.Kind == EventError {
			return "", fmt.Errorf("%s: %s", ev.ErrorKind, ev.ErrorMessage)
		}
	}
	return text, nil
}
