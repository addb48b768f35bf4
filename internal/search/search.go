// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package search implements the hybrid search of spec §4.G: embed the
// query, run bounded vector queries over both the summary and code
// indexes plus a bounded lexical query, score and merge candidates,
// dedup by file, and truncate to top_k. Grounded on
// dshills-gocontext-mcp/internal/storage/vector_ops.go's
// searchVector/searchText split (cosine fallback + FTS5 BM25) and
// kraklabs-cie/pkg/tools/semantic.go's similarity-threshold/result-
// shaping conventions, generalized to the two-index dedup-by-file merge
// spec §4.G describes.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cartograph/cartograph/internal/embed"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/metrics"
	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/store"
)

const (
	filenameBoost      = 1.3
	vectorWeight       = 0.7
	textWeight         = 0.3
	defaultTopK        = 5
	vectorCandidateMul = 2
	lexicalCandidateMul = 4
)

// CodeElement is one chunk-level hit surviving dedup within a Result.
type CodeElement struct {
	ChunkName string `json:"chunk_name"`
	ChunkType string `json:"chunk_type"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Code      string `json:"code"`
}

// Result is one file-level hit of Search, per spec §4.G step 5.
type Result struct {
	FileID       string        `json:"file_id"`
	Path         string        `json:"path"`
	Language     string        `json:"language"`
	Summary      string        `json:"summary,omitempty"`
	CodeElements []CodeElement `json:"code_elements,omitempty"`
	Score        float64       `json:"score"`
}

// Engine runs hybrid search queries against a Repository's indexed
// Files.
type Engine struct {
	store    *store.Store
	embedder *embed.Generator
}

// New builds a search Engine over s, embedding queries with embedder.
func New(s *store.Store, embedder *embed.Generator) *Engine {
	return &Engine{store: s, embedder: embedder}
}

type candidate struct {
	fileID     string
	chunkIndex int // -1 for a file-level (summary or lexical-only) candidate
	vectorSim  float64
	textScore  float64
}

func candidateKey(fileID string, chunkIndex int) string {
	if chunkIndex < 0 {
		return fileID + "|-"
	}
	return fileID + "|" + string(rune(chunkIndex))
}

// Search implements spec §4.G's contract: search(repo_id, query_text,
// top_k=5) → ranked results[].
func (e *Engine) Search(ctx context.Context, repoID, queryText string, topK int, creds llm.Credentials) ([]Result, error) {
	start := time.Now()
	results, err := e.search(ctx, repoID, queryText, topK, creds)
	if err == nil {
		metrics.ObserveSearch(time.Since(start), len(results))
	}
	return results, err
}

func (e *Engine) search(ctx context.Context, repoID, queryText string, topK int, creds llm.Credentials) ([]Result, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, errs.NewInvalidInput("query_text is empty", nil)
	}

	vectors, err := e.embedder.Embed(ctx, repoID, creds, []string{queryText})
	if err != nil {
		return nil, err
	}
	qVec := vectors[0]

	var summaryHits, codeHits []store.VectorCandidate
	var lexicalHits []store.LexicalCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.store.SummaryVectorCandidates(gctx, repoID, qVec, vectorCandidateMul*topK)
		summaryHits = hits
		return err
	})
	g.Go(func() error {
		hits, err := e.store.CodeVectorCandidates(gctx, repoID, qVec, vectorCandidateMul*topK)
		codeHits = hits
		return err
	})
	g.Go(func() error {
		hits, err := e.store.LexicalCandidates(gctx, repoID, queryText, lexicalCandidateMul*topK)
		lexicalHits = hits
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files, err := e.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.File, len(files))
	for _, f := range files {
		byID[f.FileID] = f
	}

	byKey := make(map[string]*candidate)
	get := func(fileID string, chunkIndex int) *candidate {
		key := fileID + "#" + itoa(chunkIndex)
		c, ok := byKey[key]
		if !ok {
			c = &candidate{fileID: fileID, chunkIndex: chunkIndex}
			byKey[key] = c
		}
		return c
	}

	for _, h := range summaryHits {
		c := get(h.FileID, -1)
		c.vectorSim = normalizeCosine(h.Similarity)
	}
	for _, h := range codeHits {
		c := get(h.FileID, h.ChunkIndex)
		c.vectorSim = normalizeCosine(h.Similarity)
	}
	for _, h := range lexicalHits {
		c := get(h.FileID, -1)
		c.textScore = h.Score
	}

	groups := make(map[string][]*candidate)
	for _, c := range byKey {
		groups[c.fileID] = append(groups[c.fileID], c)
	}

	var results []Result
	for fileID, members := range groups {
		f, ok := byID[fileID]
		if !ok {
			continue
		}
		boost := 1.0
		if queryMatchesFilename(queryText, f.Filename) {
			boost = filenameBoost
		}

		best := 0.0
		hasSummary := false
		var elements []CodeElement
		for _, m := range members {
			score := boost * (vectorWeight*m.vectorSim + textWeight*m.textScore)
			if score > best {
				best = score
			}
			if m.chunkIndex < 0 {
				hasSummary = true
				continue
			}
			if el := chunkElement(f, m.chunkIndex); el != nil {
				elements = append(elements, *el)
			}
		}
		sort.Slice(elements, func(i, j int) bool { return elements[i].LineStart < elements[j].LineStart })

		r := Result{FileID: f.FileID, Path: f.Path, Language: f.Language, Score: best}
		if hasSummary {
			r.Summary = f.Summary
		}
		r.CodeElements = elements
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FileID < results[j].FileID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// normalizeCosine maps cosine similarity in [-1,1] into [0,1].
func normalizeCosine(sim float64) float64 {
	v := (sim + 1) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// queryMatchesFilename reports whether any whitespace-separated query
// token intersects filename case-insensitively, per spec §4.G step 4.
func queryMatchesFilename(query, filename string) bool {
	lowerFilename := strings.ToLower(filename)
	for _, tok := range strings.Fields(query) {
		if tok == "" {
			continue
		}
		if strings.Contains(lowerFilename, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

func chunkElement(f *model.File, chunkIndex int) *CodeElement {
	for _, c := range f.Chunks {
		if c.ChunkIndex == chunkIndex {
			return &CodeElement{
				ChunkName: c.ChunkName,
				ChunkType: string(c.ChunkType),
				LineStart: c.LineStart,
				LineEnd:   c.LineEnd,
				Code:      c.Code,
			}
		}
	}
	return nil
}

func itoa(n int) string {
	if n < 0 {
		return "-1"
	}
	// chunk indexes are small and non-negative; avoid pulling in strconv
	// for a single-purpose map-key helper.
	digits := [20]byte{}
	i := len(digits)
	if n == 0 {
		return "0"
	}
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
