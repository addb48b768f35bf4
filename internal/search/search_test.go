// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	"testing"

	"github.com/cartograph/cartograph/internal/embed"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/store"
)

// stubEmbedProvider returns queryVec for every call so Search's
// cosine similarity against seeded file vectors is deterministic.
type stubEmbedProvider struct {
	vec []float32
}

func (p stubEmbedProvider) Embed(ctx context.Context, creds llm.Credentials, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = p.vec
	}
	return out, nil
}

func newTestEngine(t *testing.T, vec []float32) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	embedder := embed.NewGenerator(stubEmbedProvider{vec: vec}, 2, nil)
	return New(s, embedder), s
}

func TestEngine_Search_RanksExactVectorMatchAbovePartialMatch(t *testing.T) {
	ctx := context.Background()
	queryVec := []float32{1, 0, 0}
	e, s := newTestEngine(t, queryVec)

	strong := &model.File{
		RepoID: "repo-1", Path: "widget.go", Filename: "widget.go", Language: "go",
		Summary: "widget logic", SummaryVector: []float32{1, 0, 0},
	}
	weak := &model.File{
		RepoID: "repo-1", Path: "other.go", Filename: "other.go", Language: "go",
		Summary: "unrelated logic", SummaryVector: []float32{0, 1, 0},
	}
	for _, f := range []*model.File{strong, weak} {
		if err := s.UpsertFile(ctx, f); err != nil {
			t.Fatalf("UpsertFile() error: %v", err)
		}
	}

	results, err := e.Search(ctx, "repo-1", "widget", 5, llm.Credentials{Provider: "openai", Model: "text-embedding-3-small"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].FileID != strong.FileID {
		t.Errorf("results[0].FileID = %q, want the strong vector+filename match %q", results[0].FileID, strong.FileID)
	}
	if results[0].Summary == "" {
		t.Errorf("expected the top result to carry its summary")
	}
}

func TestEngine_Search_DedupsVectorAndLexicalHitsPerFile(t *testing.T) {
	ctx := context.Background()
	queryVec := []float32{1, 0, 0}
	e, s := newTestEngine(t, queryVec)

	f := &model.File{
		RepoID: "repo-1", Path: "widget.go", Filename: "widget.go", Language: "go",
		Content: "package widgets\n\nfunc New() {}\n",
		Summary: "constructs widgets", SummaryVector: []float32{1, 0, 0},
		Chunks: []model.Chunk{
			{ChunkIndex: 0, ChunkName: "New", ChunkType: model.ChunkFunction, ChunkText: "constructs a widget", Vector: []float32{1, 0, 0}, LineStart: 3, LineEnd: 3, Code: "func New() {}"},
		},
	}
	if err := s.UpsertFile(ctx, f); err != nil {
		t.Fatalf("UpsertFile() error: %v", err)
	}

	results, err := e.Search(ctx, "repo-1", "widgets", 5, llm.Credentials{Provider: "openai"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (one result per file)", len(results))
	}
	if results[0].FileID != f.FileID {
		t.Errorf("FileID = %q, want %q", results[0].FileID, f.FileID)
	}
	if len(results[0].CodeElements) != 1 || results[0].CodeElements[0].ChunkName != "New" {
		t.Errorf("CodeElements = %+v, want one element for New", results[0].CodeElements)
	}
}

func TestEngine_Search_EmptyQueryIsInvalidInput(t *testing.T) {
	e, _ := newTestEngine(t, []float32{1, 0, 0})
	_, err := e.Search(context.Background(), "repo-1", "   ", 5, llm.Credentials{})
	if err == nil {
		t.Fatalf("expected an error for an empty query")
	}
}

func TestEngine_Search_TruncatesToTopK(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, []float32{1, 0, 0})

	for i := 0; i < 3; i++ {
		f := &model.File{
			RepoID: "repo-1", Path: "f" + string(rune('a'+i)) + ".go", Language: "go",
			Summary: "widget logic", SummaryVector: []float32{1, 0, 0},
		}
		if err := s.UpsertFile(ctx, f); err != nil {
			t.Fatalf("UpsertFile() error: %v", err)
		}
	}

	results, err := e.Search(ctx, "repo-1", "widget", 2, llm.Credentials{})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2 (truncated to top_k)", len(results))
	}
}

func TestNormalizeCosine(t *testing.T) {
	tests := []struct {
		sim  float64
		want float64
	}{
		{1, 1},
		{-1, 0},
		{0, 0.5},
		{2, 1},
		{-2, 0},
	}
	for _, tt := range tests {
		if got := normalizeCosine(tt.sim); got != tt.want {
			t.Errorf("normalizeCosine(%v) = %v, want %v", tt.sim, got, tt.want)
		}
	}
}

func TestQueryMatchesFilename(t *testing.T) {
	tests := []struct {
		query, filename string
		want            bool
	}{
		{"widget search", "widget.go", true},
		{"Widget", "widget.go", true},
		{"unrelated", "widget.go", false},
		{"", "widget.go", false},
	}
	for _, tt := range tests {
		if got := queryMatchesFilename(tt.query, tt.filename); got != tt.want {
			t.Errorf("queryMatchesFilename(%q, %q) = %v, want %v", tt.query, tt.filename, got, tt.want)
		}
	}
}

func TestItoa(t *testing.T) {
	tests := map[int]string{-1: "-1", 0: "0", 7: "7", 42: "42", 100: "100"}
	for n, want := range tests {
		if got := itoa(n); got != want {
			t.Errorf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
}
