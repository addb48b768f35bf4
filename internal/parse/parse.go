// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package parse implements the parser pool of spec §4.B: per
// language, dispatch to either (i) a native structural parser — Go's
// own go/parser, embedded in the runtime — or (ii) a generic
// tree-sitter grammar selected by extension, with a regex fallback for
// anything neither covers. Grounded on the teacher's
// pkg/ingestion/parser_go.go / parser_interface.go two-strategy split,
// generalized from Go-and-TypeScript to the 8+ languages spec §2
// budgets for.
package parse

import (
	"context"

	"github.com/cartograph/cartograph/internal/model"
)

// Result is the uniform per-file structural record spec §3 assigns to
// a File: functions, classes, and normalized import targets.
type Result struct {
	Parsed    bool
	Functions []model.Function
	Classes   []model.Class
	Imports   []string
}

// LanguageParser parses one file's content for a specific language.
type LanguageParser interface {
	Parse(ctx context.Context, path string, content []byte) (Result, error)
}

// Pool dispatches by language to the right strategy and never lets a
// parse error escape: failures degrade to Result{Parsed: false} per
// spec §4.B's failure-mode clause.
type Pool struct {
	byLanguage map[string]LanguageParser
	fallback   LanguageParser
}

// NewPool builds the dispatch table: go/parser for Go, tree-sitter
// grammars for the rest of the supported set, and the regex-based
// GenericParser for everything else.
func NewPool() *Pool {
	ts := NewTreeSitterParser()
	return &Pool{
		byLanguage: map[string]LanguageParser{
			"go":         &GoParser{},
			"python":     ts.For("python"),
			"javascript": ts.For("javascript"),
			"typescript": ts.For("typescript"),
			"ruby":       ts.For("ruby"),
			"rust":       ts.For("rust"),
			"java":       ts.For("java"),
			"c":          ts.For("c"),
			"cpp":        ts.For("cpp"),
		},
		fallback: &GenericParser{},
	}
}

// Parse dispatches path's language and never returns an error. A
// language with no registered parser is handled by the regex
// GenericParser, and its result is marked Parsed=true; such a file is
// not reported as unparsed. A parse failure yields
// Result{Parsed: false} with empty structural arrays.
func (p *Pool) Parse(ctx context.Context, language, path string, content []byte) Result {
	lp, ok := p.byLanguage[language]
	if !ok {
		lp = p.fallback
	}
	res, err := lp.Parse(ctx, path, content)
	if err != nil {
		return Result{Parsed: false}
	}
	res.Parsed = true
	return res
}

// normalizeSignature renders a short human-readable signature string
// used when a language parser doesn't synthesize its own.
func normalizeSignature(name string, params []string) string {
	out := name + "("
	for i, p := range params {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out + ")"
}
