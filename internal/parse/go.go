// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parse

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/cartograph/cartograph/internal/model"
)

// GoParser is the "native structural parser for the source language
// when one is embedded in the runtime" spec §4.B describes — for Go
// that runtime is this very program, via go/parser.
type GoParser struct{}

func (g *GoParser) Parse(_ context.Context, path string, content []byte) (Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return Result{}, err
	}

	var functions []model.Function
	var classes []model.Class
	methodsByType := make(map[string][]string)

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		start := fset.Position(fn.Pos()).Line
		end := fset.Position(fn.End()).Line
		params := paramNames(fn.Type)

		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			recvType := receiverTypeName(fn.Recv.List[0].Type)
			methodsByType[recvType] = append(methodsByType[recvType], fn.Name.Name)
			functions = append(functions, model.Function{
				Name:        fn.Name.Name,
				ParentClass: recvType,
				IsMethod:    true,
				Signature:   signatureOf(fn),
				LineStart:   start,
				LineEnd:     end,
				Parameters:  params,
			})
			continue
		}
		functions = append(functions, model.Function{
			Name:       fn.Name.Name,
			IsMethod:   false,
			Signature:  signatureOf(fn),
			LineStart:  start,
			LineEnd:    end,
			Parameters: params,
		})
	}

	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			switch ts.Type.(type) {
			case *ast.StructType, *ast.InterfaceType:
				start := fset.Position(ts.Pos()).Line
				end := fset.Position(ts.End()).Line
				classes = append(classes, model.Class{
					Name:      ts.Name.Name,
					LineStart: start,
					LineEnd:   end,
					Methods:   methodsByType[ts.Name.Name],
				})
			}
		}
	}

	var imports []string
	for _, imp := range file.Imports {
		if v, err := strconv.Unquote(imp.Path.Value); err == nil {
			imports = append(imports, v)
		}
	}

	return Result{Functions: functions, Classes: classes, Imports: imports}, nil
}

func paramNames(ft *ast.FuncType) []string {
	var out []string
	if ft.Params == nil {
		return out
	}
	for _, field := range ft.Params.List {
		typeStr := exprString(field.Type)
		if len(field.Names) == 0 {
			out = append(out, typeStr)
			continue
		}
		for _, n := range field.Names {
			out = append(out, n.Name+" "+typeStr)
		}
	}
	return out
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return exprString(expr)
	}
}

func signatureOf(fn *ast.FuncDecl) string {
	var b strings.Builder
	b.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		b.WriteString("(" + exprString(fn.Recv.List[0].Type) + ") ")
	}
	b.WriteString(fn.Name.Name)
	b.WriteString("(")
	b.WriteString(strings.Join(paramNames(fn.Type), ", "))
	b.WriteString(")")
	if fn.Type.Results != nil {
		var results []string
		for _, r := range fn.Type.Results.List {
			results = append(results, exprString(r.Type))
		}
		if len(results) == 1 {
			b.WriteString(" " + results[0])
		} else if len(results) > 1 {
			b.WriteString(" (" + strings.Join(results, ", ") + ")")
		}
	}
	return b.String()
}

// exprString renders a type expression without importing go/printer,
// covering the shapes that show up in parameter and result lists.
func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return "map[" + exprString(t.Key) + "]" + exprString(t.Value)
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.FuncType:
		return "func(...)"
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	default:
		return "any"
	}
}
