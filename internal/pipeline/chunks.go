// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pipeline

import (
	"fmt"
	"strings"

	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/model"
)

// buildChunks slices f's source by line range into one Chunk per
// function and per class, synthesizing chunk_text from the function's
// name and signature (a class's name and method names) since the
// embedding and summarizing substages run in true
// parallel — chunk_text cannot wait on a sibling's output. Grounded on
// dshills-gocontext-mcp's Chunker.createChunkForSymbol line-slicing
// approach, generalized from Go symbols to the language-agnostic
// model.Function/model.Class structural record.
func buildChunks(f *model.File) []model.Chunk {
	lines := strings.Split(f.Content, "\n")
	var chunks []model.Chunk

	for _, fn := range f.Functions {
		code := sliceLines(lines, fn.LineStart, fn.LineEnd)
		chunks = append(chunks, model.Chunk{
			ChunkType:   model.ChunkFunction,
			ChunkName:   fn.Name,
			ChunkText:   synthesizeFunctionText(fn),
			Code:        code,
			LineStart:   fn.LineStart,
			LineEnd:     fn.LineEnd,
			ParentClass: fn.ParentClass,
		})
	}
	for _, cl := range f.Classes {
		code := sliceLines(lines, cl.LineStart, cl.LineEnd)
		chunks = append(chunks, model.Chunk{
			ChunkType: model.ChunkClass,
			ChunkName: cl.Name,
			ChunkText: synthesizeClassText(cl),
			Code:      code,
			LineStart: cl.LineStart,
			LineEnd:   cl.LineEnd,
		})
	}

	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

func synthesizeFunctionText(fn model.Function) string {
	if fn.IsMethod && fn.ParentClass != "" {
		return fmt.Sprintf("method %s on %s: %s", fn.Name, fn.ParentClass, fn.Signature)
	}
	return fmt.Sprintf("function %s: %s", fn.Name, fn.Signature)
}

func synthesizeClassText(cl model.Class) string {
	if len(cl.Methods) == 0 {
		return fmt.Sprintf("type %s", cl.Name)
	}
	return fmt.Sprintf("type %s with methods: %s", cl.Name, strings.Join(cl.Methods, ", "))
}

// mergeChunkDescriptions overwrites ChunkText on f's existing chunks
// with the LLM-produced descriptions from SummarizeFile, when a name
// match is found, per spec §4.F's "chunk_text ... produced in stage
// summarizing when available". Vectors are left untouched: embedding
// already ran against the synthesized text in the parallel substage,
// and re-embedding here would require a second, serialized pass this
// orchestrator does not make.
func mergeChunkDescriptions(f *model.File, descriptions []llm.ChunkDescription) {
	byName := make(map[string]string, len(descriptions))
	for _, d := range descriptions {
		byName[d.ChunkName] = d.Text
	}
	for i := range f.Chunks {
		if text, ok := byName[f.Chunks[i].ChunkName]; ok && text != "" {
			f.Chunks[i].ChunkText = text
		}
	}
}
