// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embed

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/llm"
)

type fakeProvider struct {
	calls      int
	batchSizes []int
	vectors    func(texts []string) [][]float32
	err        error
}

func (f *fakeProvider) Embed(_ context.Context, _ llm.Credentials, texts []string) ([][]float32, error) {
	f.calls++
	f.batchSizes = append(f.batchSizes, len(texts))
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors(texts), nil
}

func unitVectors(n int) func([]string) [][]float32 {
	return func(texts []string) [][]float32 {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = make([]float32, n)
			out[i][0] = 1
		}
		return out
	}
}

func TestBatchByCapAndChars(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	batches := batchByCapAndChars(texts, 2, 1000)

	if len(batches) != 3 {
		t.Fatalf("len(batches) = %d, want 3", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 2 || len(batches[2]) != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", []int{len(batches[0]), len(batches[1]), len(batches[2])})
	}
}

func TestBatchByCapAndChars_SplitsOnCharBudget(t *testing.T) {
	texts := []string{"aaaaa", "bbbbb", "ccccc"}
	batches := batchByCapAndChars(texts, 10, 8)

	if len(batches) != 3 {
		t.Fatalf("len(batches) = %d, want 3 (each text alone exceeds the remaining char budget)", len(batches))
	}
}

func TestGenerator_Embed_PreservesOrderAcrossBatches(t *testing.T) {
	provider := &fakeProvider{vectors: func(texts []string) [][]float32 {
		out := make([][]float32, len(texts))
		for i, txt := range texts {
			out[i] = []float32{float32(len(txt))}
		}
		return out
	}}
	g := NewGenerator(provider, 2, slog.Default())

	texts := []string{"a", "bb", "ccc", "dddd"}
	vectors, err := g.Embed(context.Background(), "repo-1", llm.Credentials{}, texts)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("len(vectors) = %d, want %d", len(vectors), len(texts))
	}
	for i, txt := range texts {
		if vectors[i][0] != float32(len(txt)) {
			t.Errorf("vectors[%d] = %v, want length-tagged vector for %q", i, vectors[i], txt)
		}
	}
}

func TestGenerator_Embed_CachesDimensionPerRepo(t *testing.T) {
	provider := &fakeProvider{vectors: unitVectors(3)}
	g := NewGenerator(provider, 1, slog.Default())

	if d := g.DimensionFor("repo-1"); d != 0 {
		t.Fatalf("DimensionFor before Embed = %d, want 0", d)
	}

	if _, err := g.Embed(context.Background(), "repo-1", llm.Credentials{}, []string{"x"}); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if d := g.DimensionFor("repo-1"); d != 3 {
		t.Errorf("DimensionFor after Embed = %d, want 3", d)
	}
}

func TestGenerator_Embed_PropagatesProviderError(t *testing.T) {
	provider := &fakeProvider{err: errs.NewLLMFailure("provider exploded", nil)}
	g := NewGenerator(provider, 1, slog.Default())

	_, err := g.Embed(context.Background(), "repo-1", llm.Credentials{}, []string{"x"})
	if err == nil {
		t.Fatalf("expected Embed to propagate the provider error")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical vectors", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched length", []float32{1, 0, 0}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty vectors", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}
