// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parse

import (
	"context"
	"testing"
)

const samplePythonSource = `import os
from widgets import helper

class Widget:
    def describe(self):
        return "widget"

def make_widget():
    return Widget()
`

func TestGenericParser_Parse(t *testing.T) {
	g := &GenericParser{}
	res, err := g.Parse(context.Background(), "widgets.py", []byte(samplePythonSource))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if len(res.Classes) != 1 || res.Classes[0].Name != "Widget" {
		t.Fatalf("Classes = %+v, want one Widget", res.Classes)
	}

	var names []string
	for _, fn := range res.Functions {
		names = append(names, fn.Name)
	}
	if len(names) != 2 || names[0] != "describe" || names[1] != "make_widget" {
		t.Errorf("Functions = %v, want [describe make_widget]", names)
	}

	if len(res.Imports) != 2 || res.Imports[0] != "os" || res.Imports[1] != "widgets" {
		t.Errorf("Imports = %v, want [os widgets]", res.Imports)
	}
}

func TestGenericParser_Parse_EmptyContent(t *testing.T) {
	g := &GenericParser{}
	res, err := g.Parse(context.Background(), "empty.txt", []byte(""))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(res.Functions) != 0 || len(res.Classes) != 0 || len(res.Imports) != 0 {
		t.Errorf("expected empty Result for empty content, got %+v", res)
	}
}

func TestLineAt(t *testing.T) {
	offsets := splitLines("abc\ndef\nghi")
	tests := []struct {
		pos  int
		want int
	}{
		{0, 1},
		{3, 1},
		{4, 2},
		{8, 3},
	}
	for _, tt := range tests {
		if got := lineAt(offsets, tt.pos); got != tt.want {
			t.Errorf("lineAt(%d) = %d, want %d", tt.pos, got, tt.want)
		}
	}
}
