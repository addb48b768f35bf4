// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package resolve implements the dependency resolver of spec §4.C:
// given a Repository's full File set, map each File's textual import
// strings to repo-local File paths, then invert that mapping into
// imported_by. Grounded on the teacher's CallResolver
// (pkg/ingestion/resolver.go) — generalized from Go-specific package-
// path indexing and call resolution to the purely textual,
// multi-language import-string resolution spec §4.C describes.
package resolve

import (
	"path"
	"sort"
	"strings"

	"github.com/cartograph/cartograph/internal/model"
)

// indexConventionNames are the per-directory files a bare directory
// import resolves to, per spec §4.C(c).
var indexConventionNames = []string{"index", "mod", "__init__"}

// languageExtensions lists the extension a bare import path gets when
// appended, per spec §4.C(b). Order matters only for determinism when
// multiple extensions could apply to the same stem.
var languageExtensions = []string{".go", ".py", ".rb", ".js", ".jsx", ".ts", ".tsx", ".rs", ".java", ".c", ".h", ".cc", ".cpp"}

// Resolve computes dependencies for every File in files, mutating
// each File's Dependencies field in place and returning the same
// slice for convenience.
func Resolve(files []*model.File) []*model.File {
	byPath := make(map[string]*model.File, len(files))
	var allPaths []string
	for _, f := range files {
		byPath[f.Path] = f
		allPaths = append(allPaths, f.Path)
	}
	sort.Strings(allPaths)

	for _, f := range files {
		var imports, external []string
		for _, raw := range f.Imports {
			target, ok := resolveOne(raw, f.Path, byPath, allPaths)
			if ok {
				imports = append(imports, target)
			} else {
				external = append(external, raw)
			}
		}
		f.Dependencies.Imports = dedupSorted(imports)
		f.Dependencies.ExternalImports = dedupSorted(external)
	}

	invert(files)
	return files
}

// resolveOne applies spec §4.C's resolution order: (a) exact path,
// (b) extension-appended, (c) directory index convention, else
// external. Ambiguous targets resolve to the lexicographically first
// match, which is guaranteed by scanning allPaths (already sorted).
func resolveOne(raw, fromPath string, byPath map[string]*model.File, allPaths []string) (string, bool) {
	candidate := normalizeTarget(raw, fromPath)

	if _, ok := byPath[candidate]; ok {
		return candidate, true
	}

	for _, ext := range languageExtensions {
		if _, ok := byPath[candidate+ext]; ok {
			return candidate + ext, true
		}
	}

	dirPrefix := strings.TrimSuffix(candidate, "/") + "/"
	var matches []string
	for _, p := range allPaths {
		if !strings.HasPrefix(p, dirPrefix) {
			continue
		}
		base := strings.TrimSuffix(path.Base(p), path.Ext(p))
		for _, conv := range indexConventionNames {
			if base == conv {
				matches = append(matches, p)
			}
		}
	}
	if len(matches) > 0 {
		sort.Strings(matches)
		return matches[0], true
	}

	return "", false
}

// normalizeTarget turns a relative or absolute import string into a
// repo-root-relative path candidate, resolved against the importing
// File's directory when it starts with "." or "..".
func normalizeTarget(raw, fromPath string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, `"'`)
	raw = strings.ReplaceAll(raw, "\\", "/")

	if strings.HasPrefix(raw, ".") {
		dir := path.Dir(fromPath)
		return path.Clean(path.Join(dir, raw))
	}
	return path.Clean(raw)
}

// invert builds imported_by as the exact inverse of imports across
// the File set (spec invariant: g ∈ f.imports ⇔ f.path ∈ g.imported_by).
func invert(files []*model.File) {
	byPath := make(map[string]*model.File, len(files))
	for _, f := range files {
		f.Dependencies.ImportedBy = nil
		byPath[f.Path] = f
	}
	reverse := make(map[string][]string)
	for _, f := range files {
		for _, target := range f.Dependencies.Imports {
			reverse[target] = append(reverse[target], f.Path)
		}
	}
	for target, froms := range reverse {
		if f, ok := byPath[target]; ok {
			f.Dependencies.ImportedBy = dedupSorted(froms)
		}
	}
}

func dedupSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
