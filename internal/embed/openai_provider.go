// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/llm"
)

// openAIBaseURLByProvider mirrors llm's dispatch table for the
// providers that also expose an /embeddings endpoint.
var openAIBaseURLByProvider = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"fireworks":  "https://api.fireworks.ai/inference/v1",
	"together":   "https://api.together.xyz/v1",
}

// OpenAIProvider calls the OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	httpClient *http.Client
}

func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, creds llm.Credentials, texts []string) ([][]float32, error) {
	baseURL := creds.BaseURL
	if baseURL == "" {
		var ok bool
		baseURL, ok = openAIBaseURLByProvider[creds.Provider]
		if !ok {
			return nil, errs.NewInvalidInput(fmt.Sprintf("provider %q does not support embeddings", creds.Provider), nil)
		}
	}

	body := embeddingsRequest{Model: creds.Model, Input: texts}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, errs.NewInternal("build embeddings request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewLLMFailure("transport error calling embeddings endpoint", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 401, 403:
		return nil, errs.NewUnauthorizedLLM("embeddings provider rejected credentials", nil)
	case 429:
		return nil, errs.NewRateLimitedLLM("embeddings provider rate limit", nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.NewLLMFailure(fmt.Sprintf("embeddings provider returned %d", resp.StatusCode), nil)
	}

	var er embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, errs.NewLLMFailure("malformed embeddings response", err)
	}
	if er.Error != nil {
		return nil, errs.NewLLMFailure(er.Error.Message, nil)
	}

	out := make([][]float32, len(texts))
	for _, d := range er.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}
