// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parse

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/cartograph/cartograph/internal/model"
)

// TreeSitterParser holds one *sitter.Language per supported grammar,
// following the teacher's per-language grammar selection in
// pkg/ingestion/parser_treesitter_test.go, generalized from
// {go, typescript} to the full 8-language set spec §2 budgets for.
type TreeSitterParser struct {
	languages map[string]*sitter.Language
}

// NewTreeSitterParser builds the grammar table once; grammars are
// immutable and safe to share across concurrent parses.
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{
		languages: map[string]*sitter.Language{
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": typescript.GetLanguage(),
			"ruby":       ruby.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"java":       java.GetLanguage(),
			"c":          c.GetLanguage(),
			"cpp":        cpp.GetLanguage(),
		},
	}
}

// For returns a LanguageParser bound to lang's grammar.
func (t *TreeSitterParser) For(lang string) LanguageParser {
	return &grammarParser{lang: lang, grammar: t.languages[lang]}
}

// functionNodeTypes and classNodeTypes enumerate the tree-sitter node
// kinds that spec §4.B calls out generically ("top-level
// function/method declarations", "class/struct/impl blocks") across
// the grammars above. Node type names are grammar-specific; this is
// the normalization layer.
var functionNodeTypes = map[string]bool{
	"function_definition":  true,
	"function_declaration": true,
	"method_definition":    true,
	"method_declaration":   true,
}

var classNodeTypes = map[string]bool{
	"class_definition":  true,
	"class_declaration": true,
	"struct_item":       true,
	"impl_item":         true,
	"interface_declaration": true,
}

var importNodeTypes = map[string]bool{
	"import_statement":     true,
	"import_from_statement": true,
	"import_declaration":   true,
	"use_declaration":      true,
	"preproc_include":      true,
}

type grammarParser struct {
	lang    string
	grammar *sitter.Language
}

func (g *grammarParser) Parse(ctx context.Context, path string, content []byte) (Result, error) {
	if g.grammar == nil {
		return Result{}, errUnsupportedGrammar
	}
	p := sitter.NewParser()
	p.SetLanguage(g.grammar)
	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return Result{}, err
	}
	defer tree.Close()

	var res Result
	root := tree.RootNode()
	walk(root, content, &res)
	return res, nil
}

// walk descends the tree collecting function/class/import nodes. It
// does not nest class traversal specially: methods inside a class
// body are visited as ordinary function nodes and recorded in
// Functions without ParentClass or IsMethod set (the class's own
// Methods list is filled by classFromNode), matching the teacher's
// node-type-driven extraction style.
func walk(n *sitter.Node, content []byte, res *Result) {
	if n == nil {
		return
	}
	kind := n.Type()
	switch {
	case functionNodeTypes[kind]:
		res.Functions = append(res.Functions, functionFromNode(n, content))
	case classNodeTypes[kind]:
		res.Classes = append(res.Classes, classFromNode(n, content))
	case importNodeTypes[kind]:
		if target := importTarget(n, content); target != "" {
			res.Imports = append(res.Imports, target)
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), content, res)
	}
}

func functionFromNode(n *sitter.Node, content []byte) model.Function {
	name := identifierChild(n, content)
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	return model.Function{
		Name:      name,
		Signature: name + "(...)",
		LineStart: start,
		LineEnd:   end,
	}
}

func classFromNode(n *sitter.Node, content []byte) model.Class {
	name := identifierChild(n, content)
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	var methods []string
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if functionNodeTypes[child.Type()] {
			methods = append(methods, identifierChild(child, content))
			continue
		}
		// method definitions are often nested one level inside a body node.
		for j := 0; j < int(child.ChildCount()); j++ {
			grand := child.Child(j)
			if functionNodeTypes[grand.Type()] {
				methods = append(methods, identifierChild(grand, content))
			}
		}
	}
	return model.Class{Name: name, LineStart: start, LineEnd: end, Methods: methods}
}

func identifierChild(n *sitter.Node, content []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if strings.Contains(child.Type(), "identifier") {
			return child.Content(content)
		}
	}
	return "anonymous"
}

func importTarget(n *sitter.Node, content []byte) string {
	text := n.Content(content)
	text = strings.TrimSpace(text)
	// normalize to the literal target string: strip quotes and keywords.
	text = strings.Trim(text, "\"'`;\n ")
	fields := strings.Fields(text)
	for _, f := range fields {
		f = strings.Trim(f, "\"'`;")
		if strings.ContainsAny(f, "./") || !isKeyword(f) {
			if isKeyword(f) {
				continue
			}
			return f
		}
	}
	return ""
}

var keywords = map[string]bool{
	"import": true, "from": true, "use": true, "require": true,
	"include": true, "as": true, "package": true,
}

func isKeyword(s string) bool { return keywords[s] }

type grammarError string

func (e grammarError) Error() string { return string(e) }

const errUnsupportedGrammar = grammarError("unsupported grammar")
