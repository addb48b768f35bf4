// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parse

import (
	"context"
	"regexp"

	"github.com/cartograph/cartograph/internal/model"
)

// GenericParser is the regex/string-matching fallback spec §4.B
// requires for "unsupported extension" — mirrors the teacher's
// ParserModeSimplified, generalized to any language by using
// loose, language-agnostic patterns rather than per-language ones.
type GenericParser struct{}

var (
	genericFuncPattern = regexp.MustCompile(`(?m)^\s*(?:func|def|function|fn|sub)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	genericClassPattern = regexp.MustCompile(`(?m)^\s*(?:class|struct|interface)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	genericImportPattern = regexp.MustCompile(`(?m)^\s*(?:import|from|use|require|include)\s+['"]?([A-Za-z0-9_./\\-]+)`)
)

func (g *GenericParser) Parse(_ context.Context, _ string, content []byte) (Result, error) {
	text := string(content)
	lines := splitLines(text)

	var res Result
	for _, m := range genericFuncPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		line := lineAt(lines, m[0])
		res.Functions = append(res.Functions, model.Function{
			Name:      name,
			Signature: normalizeSignature(name, nil),
			LineStart: line,
			LineEnd:   line,
		})
	}
	for _, m := range genericClassPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		line := lineAt(lines, m[0])
		res.Classes = append(res.Classes, model.Class{Name: name, LineStart: line, LineEnd: line})
	}
	for _, m := range genericImportPattern.FindAllStringSubmatch(text, -1) {
		res.Imports = append(res.Imports, m[1])
	}
	return res, nil
}

func splitLines(s string) []int {
	offsets := []int{0}
	for i, c := range s {
		if c == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func lineAt(offsets []int, pos int) int {
	// binary search would be cleaner; the file sizes here are small
	// enough that linear scan from the end is fine.
	for i := len(offsets) - 1; i >= 0; i-- {
		if offsets[i] <= pos {
			return i + 1
		}
	}
	return 1
}
