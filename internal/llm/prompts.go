// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package llm

import (
	"fmt"
	"strings"
)

func buildSummarizePrompt(language, content string, structural StructuralRecord) string {
	var b strings.Builder
	b.WriteString("Summarize the following ")
	b.WriteString(language)
	b.WriteString(" file in 3-6 sentences, then describe each listed function and class in one sentence.\n\n")
	if len(structural.Functions) > 0 {
		b.WriteString("Functions: " + strings.Join(structural.Functions, ", ") + "\n")
	}
	if len(structural.Classes) > 0 {
		b.WriteString("Classes: " + strings.Join(structural.Classes, ", ") + "\n")
	}
	b.WriteString("\n---\n")
	b.WriteString(content)
	return b.String()
}

func buildOverviewPrompt(repoName string, summaries []FileSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Write a repository-level overview of %s from these file summaries:\n\n", repoName))
	for _, s := range summaries {
		b.WriteString("- " + s.Path + ": " + s.Summary + "\n")
	}
	return b.String()
}

// parseSummaryResponse splits the model's free-text response into a
// leading summary paragraph and one ChunkDescription per
// function/class name named in structural, matched by a loose
// substring scan of the response text. This is intentionally
// tolerant: a missing per-symbol sentence degrades to an empty
// description rather than failing the stage (spec §4.B/4.D's
// best-effort-file philosophy extends to summarization).
func parseSummaryResponse(text string, structural StructuralRecord) (string, []ChunkDescription) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var summaryLines []string
	var descriptions []ChunkDescription

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		matched := false
		for _, name := range append(append([]string{}, structural.Functions...), structural.Classes...) {
			if name != "" && strings.Contains(trimmed, name) {
				kind := "function"
				for _, c := range structural.Classes {
					if c == name {
						kind = "class"
					}
				}
				descriptions = append(descriptions, ChunkDescription{ChunkName: name, ChunkType: kind, Text: trimmed})
				matched = true
				break
			}
		}
		if !matched {
			summaryLines = append(summaryLines, trimmed)
		}
	}
	return strings.Join(summaryLines, " "), descriptions
}
