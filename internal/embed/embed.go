// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package embed implements the batched, retrying text→vector client
// of spec §4.E. Grounded on the teacher's EmbeddingGenerator
// (pkg/ingestion/embedding.go): a worker-pool-bounded provider call
// with the shared RetryConfig, generalized from per-function-call
// batching to the 96-input/6000-char batching cap spec §4.E names,
// and from a single embedding provider to the dynamic
// {provider, model, api_key} tuple spec §4.D's Credentials carries.
package embed

import (
	"context"
	"log/slog"
	"math"

	"github.com/cartograph/cartograph/internal/concurrency"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/metrics"
)

const (
	maxBatchInputs = 96
	maxBatchChars  = 6000
)

// Provider calls a specific embedding backend.
type Provider interface {
	Embed(ctx context.Context, creds llm.Credentials, texts []string) ([][]float32, error)
}

// Generator batches, bounds, and retries calls to a Provider,
// discovering and caching the provider's vector dimension on first
// call per Repository.
type Generator struct {
	provider Provider
	limiter  *concurrency.Limiter
	logger   *slog.Logger

	dimensions map[string]int // repoID -> dimension
}

// NewGenerator builds a Generator bounded to cEmbed concurrent
// batches (spec §4.F's C_embed, default 4).
func NewGenerator(provider Provider, cEmbed int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		provider:   provider,
		limiter:    concurrency.NewLimiter(cEmbed),
		logger:     logger,
		dimensions: make(map[string]int),
	}
}

// Embed preserves input order across internal batching, per spec
// §4.E's "embed(texts[]) → vectors[] preserving order".
func (g *Generator) Embed(ctx context.Context, repoID string, creds llm.Credentials, texts []string) ([][]float32, error) {
	batches := batchByCapAndChars(texts, maxBatchInputs, maxBatchChars)

	result := make([][]float32, len(texts))
	offset := 0
	for _, batch := range batches {
		vectors, err := g.embedBatch(ctx, creds, batch)
		if err != nil {
			return nil, err
		}
		for i, v := range vectors {
			result[offset+i] = v
		}
		offset += len(batch)
	}

	if len(result) > 0 && len(result[0]) > 0 {
		if _, ok := g.dimensions[repoID]; !ok {
			g.dimensions[repoID] = len(result[0])
			g.logger.Info("embed.dimension.discovered", "repo_id", repoID, "dimension", len(result[0]))
		}
	}
	return result, nil
}

// DimensionFor returns the cached dimension for a Repository, or 0 if
// none has been discovered yet.
func (g *Generator) DimensionFor(repoID string) int {
	return g.dimensions[repoID]
}

func (g *Generator) embedBatch(ctx context.Context, creds llm.Credentials, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := g.limiter.Do(ctx, func(ctx context.Context) error {
		return concurrency.Retry(ctx, concurrency.DefaultTransportRetry(), concurrency.DefaultRateLimitRetry(),
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
				v, err := g.provider.Embed(ctx, creds, texts)
				if err != nil {
					return err
				}
				vectors = v
				return nil
			},
			metrics.RecordEmbedRetry,
		)
	})
	return vectors, err
}

// batchByCapAndChars splits texts into batches of at most maxInputs
// items or maxChars cumulative characters, whichever fires first.
func batchByCapAndChars(texts []string, maxInputs, maxChars int) [][]string {
	var batches [][]string
	var current []string
	currentChars := 0

	for _, t := range texts {
		if len(current) > 0 && (len(current) >= maxInputs || currentChars+len(t) > maxChars) {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}
		current = append(current, t)
		currentChars += len(t)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// CosineSimilarity computes cosine similarity in [-1, 1]; the search
// package clamps and normalizes it into [0,1] per spec §4.G.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
