// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package query implements the conversational query engine of spec
// §4.H: a tool-calling loop over a Repository's indexed Files, with
// conversation history, streamed events, and cited sources. The
// handler-per-tool dispatch style (required-arg checks, optional-arg
// defaults, a {result}/{error} envelope) is adapted by hand from
// dshills-gocontext-mcp/internal/mcp/tools.go's MCP tool handlers —
// the wire protocol differs (OpenAI tool_calls, not MCP JSON-RPC), so
// mark3labs/mcp-go itself is not imported, only its handler shape.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/search"
	"github.com/cartograph/cartograph/internal/store"
)

// Source is one {file_path, line_start?, line_end?} citation surfaced
// by a tool result, deduped and ordered by first appearance across a
// turn.
type Source struct {
	FilePath  string `json:"file_path"`
	LineStart *int   `json:"line_start,omitempty"`
	LineEnd   *int   `json:"line_end,omitempty"`
}

func lineSource(path string, start, end int) Source {
	s, e := start, end
	return Source{FilePath: path, LineStart: &s, LineEnd: &e}
}

// ToolContext is the per-call state a ToolHandler needs: the indexes
// to read from, which Repository is in scope, and the Credentials the
// turn resolved for embedding queries.
type ToolContext struct {
	Ctx    context.Context
	Store  *store.Store
	Search *search.Engine
	Repo   *model.Repository
	Creds  llm.Credentials
}

// ToolHandler executes one tool call and reports both its JSON-
// encodable result and the Sources it surfaced.
type ToolHandler func(tc ToolContext, args map[string]any) (result any, count int, sources []Source, err error)

// ToolDef pairs a tool's OpenAI-style schema with its handler.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     ToolHandler
}

// Registry is the fixed catalog of tools the query engine exposes to
// the model, per spec §4.H's four tools.
type Registry struct {
	defs   []ToolDef
	byName map[string]ToolDef
}

// NewRegistry builds the default tool catalog: search_code,
// get_repo_overview, get_file_by_path, find_function.
func NewRegistry() *Registry {
	defs := []ToolDef{
		searchCodeTool(),
		getRepoOverviewTool(),
		getFileByPathTool(),
		findFunctionTool(),
	}
	r := &Registry{defs: defs, byName: make(map[string]ToolDef, len(defs))}
	for _, d := range defs {
		r.byName[d.Name] = d
	}
	return r
}

// Defs returns the tool catalog in the llm.ToolDef wire shape.
func (r *Registry) Defs() []llm.ToolDef {
	out := make([]llm.ToolDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, llm.ToolDef{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}

// Dispatch looks up name and runs its handler against argsJSON, the
// accumulated arguments string the provider streamed for this call.
func (r *Registry) Dispatch(tc ToolContext, name, argsJSON string) (any, int, []Source, error) {
	def, ok := r.byName[name]
	if !ok {
		return nil, 0, nil, errs.NewInvalidInput(fmt.Sprintf("unknown tool %q", name), nil)
	}
	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, 0, nil, errs.NewInvalidInput("malformed tool arguments", err)
		}
	}
	return def.Handler(tc, args)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// search_code(query, top_k=5) → {results: [...]}, per spec §4.H.
func searchCodeTool() ToolDef {
	return ToolDef{
		Name:        "search_code",
		Description: "Hybrid semantic + lexical search over the repository's indexed files. Returns ranked file-level hits with matching functions/classes.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":  map[string]any{"type": "string", "description": "Natural-language or keyword description of what to find."},
				"top_k":  map[string]any{"type": "integer", "description": "Maximum number of results to return.", "default": 5},
			},
			"required": []string{"query"},
		},
		Handler: func(tc ToolContext, args map[string]any) (any, int, []Source, error) {
			q := stringArg(args, "query")
			if q == "" {
				return nil, 0, nil, errs.NewInvalidInput("query is required", nil)
			}
			topK := intArg(args, "top_k", 5)
			results, err := tc.Search.Search(tc.Ctx, tc.Repo.RepoID, q, topK, tc.Creds)
			if err != nil {
				return nil, 0, nil, err
			}
			var sources []Source
			for _, r := range results {
				if r.Summary != "" {
					sources = append(sources, Source{FilePath: r.Path})
				}
				for _, el := range r.CodeElements {
					sources = append(sources, lineSource(r.Path, el.LineStart, el.LineEnd))
				}
			}
			return map[string]any{"results": results}, len(results), sources, nil
		},
	}
}

// overviewKeyFiles is how many of a Repository's most-depended-on
// Files get_repo_overview surfaces alongside the repo-level summary.
const overviewKeyFiles = 10

type keyFile struct {
	Path    string `json:"path"`
	Summary string `json:"summary,omitempty"`
}

// get_repo_overview() → {overview, key_files: [{path, summary}]}.
func getRepoOverviewTool() ToolDef {
	return ToolDef{
		Name:        "get_repo_overview",
		Description: "Returns the repository-level overview and its most-depended-on files.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(tc ToolContext, args map[string]any) (any, int, []Source, error) {
			files, err := tc.Store.ListFiles(tc.Ctx, tc.Repo.RepoID)
			if err != nil {
				return nil, 0, nil, err
			}
			sort.Slice(files, func(i, j int) bool {
				li, lj := len(files[i].Dependencies.ImportedBy), len(files[j].Dependencies.ImportedBy)
				if li != lj {
					return li > lj
				}
				return files[i].Path < files[j].Path
			})
			if len(files) > overviewKeyFiles {
				files = files[:overviewKeyFiles]
			}
			keyFiles := make([]keyFile, 0, len(files))
			var sources []Source
			for _, f := range files {
				keyFiles = append(keyFiles, keyFile{Path: f.Path, Summary: f.Summary})
				sources = append(sources, Source{FilePath: f.Path})
			}
			result := map[string]any{"overview": tc.Repo.Overview, "key_files": keyFiles}
			return result, len(keyFiles), sources, nil
		},
	}
}

type fileByPathResult struct {
	Path         string           `json:"path"`
	Language     string           `json:"language"`
	Content      string           `json:"content"`
	Summary      string           `json:"summary,omitempty"`
	Functions    []model.Function `json:"functions"`
	Classes      []model.Class    `json:"classes"`
	Dependencies model.Dependencies `json:"dependencies"`
}

// get_file_by_path(path) → the full file record, per spec §4.H.
func getFileByPathTool() ToolDef {
	return ToolDef{
		Name:        "get_file_by_path",
		Description: "Returns the full content, structural record, and dependencies of one file by its repo-relative path.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Repo-relative file path."},
			},
			"required": []string{"path"},
		},
		Handler: func(tc ToolContext, args map[string]any) (any, int, []Source, error) {
			p := stringArg(args, "path")
			if p == "" {
				return nil, 0, nil, errs.NewInvalidInput("path is required", nil)
			}
			f, err := tc.Store.GetFileByPath(tc.Ctx, tc.Repo.RepoID, p)
			if err != nil {
				return nil, 0, nil, err
			}
			result := fileByPathResult{
				Path: f.Path, Language: f.Language, Content: f.Content, Summary: f.Summary,
				Functions: f.Functions, Classes: f.Classes, Dependencies: f.Dependencies,
			}
			return result, 1, []Source{{FilePath: f.Path}}, nil
		},
	}
}

type functionMatch struct {
	Path     string        `json:"path"`
	Function model.Function `json:"function"`
}

// find_function(name) → {matches: [{path, function}]}.
func findFunctionTool() ToolDef {
	return ToolDef{
		Name:        "find_function",
		Description: "Finds every function or method across the repository with an exact name match.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string", "description": "Exact function or method name."},
			},
			"required": []string{"name"},
		},
		Handler: func(tc ToolContext, args map[string]any) (any, int, []Source, error) {
			name := stringArg(args, "name")
			if name == "" {
				return nil, 0, nil, errs.NewInvalidInput("name is required", nil)
			}
			files, fns, err := tc.Store.FindFunctionByName(tc.Ctx, tc.Repo.RepoID, name)
			if err != nil {
				return nil, 0, nil, err
			}
			matches := make([]functionMatch, 0, len(files))
			sources := make([]Source, 0, len(files))
			for i, f := range files {
				matches = append(matches, functionMatch{Path: f.Path, Function: fns[i]})
				sources = append(sources, lineSource(f.Path, fns[i].LineStart, fns[i].LineEnd))
			}
			return map[string]any{"matches": matches}, len(matches), sources, nil
		},
	}
}
