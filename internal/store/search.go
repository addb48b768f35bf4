// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

import (
	"context"
	"strings"

	"github.com/cartograph/cartograph/internal/embed"
	"github.com/cartograph/cartograph/internal/errs"
)

// VectorCandidate is one nearest-neighbor hit from a Go-side cosine
// scan, keyed by file and optional chunk index. Grounded on
// dshills-gocontext-mcp's VectorResult / searchVectorFallback shape.
type VectorCandidate struct {
	FileID     string
	ChunkIndex int // -1 when this is a summary-vector hit, not a chunk hit
	Similarity float64
}

// SummaryVectorCandidates scans every File's summary_vector in repoID
// and returns the top `limit` by cosine similarity to queryVec — the
// summary_index of spec §4.G step 2.
func (s *Store) SummaryVectorCandidates(ctx context.Context, repoID string, queryVec []float32, limit int) ([]VectorCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, summary_vector_json FROM files WHERE repo_id = ? AND summary_vector_json IS NOT NULL`, repoID)
	if err != nil {
		return nil, errs.NewInternal("query summary vectors", err)
	}
	defer rows.Close()

	var candidates []VectorCandidate
	for rows.Next() {
		var fileID string
		var vecJSON string
		if err := rows.Scan(&fileID, &vecJSON); err != nil {
			return nil, errs.NewInternal("scan summary vector", err)
		}
		var vec []float32
		unmarshalJSON(vecJSON, &vec)
		if len(vec) == 0 {
			continue
		}
		sim := embed.CosineSimilarity(queryVec, vec)
		candidates = append(candidates, VectorCandidate{FileID: fileID, ChunkIndex: -1, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewInternal("iterate summary vectors", err)
	}
	return topN(candidates, limit), nil
}

// CodeVectorCandidates scans every File's chunks[].vector in repoID
// and returns the top `limit` by cosine similarity — the code_index
// of spec §4.G step 2.
func (s *Store) CodeVectorCandidates(ctx context.Context, repoID string, queryVec []float32, limit int) ([]VectorCandidate, error) {
	files, err := s.ListFiles(ctx, repoID)
	if err != nil {
		return nil, err
	}
	var candidates []VectorCandidate
	for _, f := range files {
		for _, c := range f.Chunks {
			if len(c.Vector) == 0 {
				continue
			}
			sim := embed.CosineSimilarity(queryVec, c.Vector)
			candidates = append(candidates, VectorCandidate{FileID: f.FileID, ChunkIndex: c.ChunkIndex, Similarity: sim})
		}
	}
	return topN(candidates, limit), nil
}

func topN(candidates []VectorCandidate, limit int) []VectorCandidate {
	// insertion sort is fine: candidate counts are bounded by
	// per-repository file/chunk counts, not corpus-wide.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Similarity > candidates[j-1].Similarity; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// LexicalCandidate is one FTS5 hit with its BM25-derived score.
type LexicalCandidate struct {
	FileID string
	Score  float64
}

// sanitizeFTSQuery strips characters FTS5's MATCH syntax treats as
// operators, mirroring dshills-gocontext-mcp's sanitizeFTSQuery.
func sanitizeFTSQuery(q string) string {
	var b strings.Builder
	for _, r := range q {
		switch r {
		case '"', '*', '^', '-', ':', '(', ')':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// LexicalCandidates runs the bounded lexical query of spec §4.G step
// 3 over (path, summary, chunks.chunk_text, chunks.code), restricted
// to repoID.
func (s *Store) LexicalCandidates(ctx context.Context, repoID, queryText string, limit int) ([]LexicalCandidate, error) {
	sanitized := sanitizeFTSQuery(queryText)
	if sanitized == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, bm25(files_fts) AS rank FROM files_fts
		 WHERE files_fts MATCH ? AND repo_id = ? ORDER BY rank LIMIT ?`,
		sanitized, repoID, limit)
	if err != nil {
		return nil, errs.NewInternal("lexical query", err)
	}
	defer rows.Close()

	var out []LexicalCandidate
	var minRank, maxRank float64
	first := true
	for rows.Next() {
		var fileID string
		var rank float64
		if err := rows.Scan(&fileID, &rank); err != nil {
			return nil, errs.NewInternal("scan lexical candidate", err)
		}
		// bm25() in SQLite's FTS5 returns lower-is-better; negate so
		// higher bm25 score means more relevant before normalization.
		score := -rank
		if first {
			minRank, maxRank = score, score
			first = false
		} else {
			if score < minRank {
				minRank = score
			}
			if score > maxRank {
				maxRank = score
			}
		}
		out = append(out, LexicalCandidate{FileID: fileID, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewInternal("iterate lexical candidates", err)
	}

	normalizeScores(out, minRank, maxRank)
	return out, nil
}

// normalizeScores rescales raw BM25-derived scores into [0,1], the
// "normalized lexical relevance" spec §4.G requires.
func normalizeScores(candidates []LexicalCandidate, min, max float64) {
	span := max - min
	for i := range candidates {
		if span <= 0 {
			candidates[i].Score = 1
			continue
		}
		candidates[i].Score = (candidates[i].Score - min) / span
	}
}
