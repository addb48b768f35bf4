// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package fetch

// extToLanguage maps a file extension to the canonical language name
// used throughout the pipeline and the parser dispatch table. Limited
// to text-eligible source extensions; anything else returns "" and is
// excluded from the tree per spec §4.A's extension policy.
var extToLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".rb":   "ruby",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".md":   "markdown",
	".yml":  "yaml",
	".yaml": "yaml",
	".json": "json",
	".toml": "toml",
	".sh":   "shell",
}

// languageForExtension returns the canonical language for ext
// (including the leading dot), or "" if the extension is not
// text-eligible.
func languageForExtension(ext string) string {
	return extToLanguage[ext]
}
