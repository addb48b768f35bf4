// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package fetch

import (
	"net/http"
	"reflect"
	"testing"

	"github.com/cartograph/cartograph/internal/errs"
)

func TestOwnerRepo(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantName  string
		wantErr   bool
	}{
		{"full https url", "https://github.com/acme/widgets", "acme", "widgets", false},
		{"trailing .git", "https://github.com/acme/widgets.git", "acme", "widgets", false},
		{"bare owner/repo shorthand", "acme/widgets", "acme", "widgets", false},
		{"empty", "", "", "", true},
		{"missing repo name", "https://github.com/acme", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, name, err := ownerRepo(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error for %q", tt.url)
				}
				if !errs.OfKind(err, errs.KindInvalidInput) {
					t.Errorf("expected KindInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if owner != tt.wantOwner || name != tt.wantName {
				t.Errorf("ownerRepo(%q) = (%q, %q), want (%q, %q)", tt.url, owner, name, tt.wantOwner, tt.wantName)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		resp          *http.Response
		err           error
		wantRetryable bool
		wantRateLimit bool
	}{
		{"transport error", nil, errGeneric, true, false},
		{"nil response no error", nil, nil, false, false},
		{"429", &http.Response{StatusCode: 429, Header: http.Header{}}, nil, true, true},
		{"403 secondary rate limit", &http.Response{StatusCode: 403, Header: http.Header{"X-Ratelimit-Remaining": []string{"0"}}}, nil, true, true},
		{"403 regular forbidden", &http.Response{StatusCode: 403, Header: http.Header{}}, nil, false, false},
		{"500", &http.Response{StatusCode: 500, Header: http.Header{}}, nil, true, false},
		{"200", &http.Response{StatusCode: 200, Header: http.Header{}}, nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, rateLimited := classify(tt.resp, tt.err)
			if retryable != tt.wantRetryable || rateLimited != tt.wantRateLimit {
				t.Errorf("classify() = (%v, %v), want (%v, %v)", retryable, rateLimited, tt.wantRetryable, tt.wantRateLimit)
			}
		})
	}
}

var errGeneric = &errs.CartographError{Kind: errs.KindInternal, Message: "boom"}

func TestGitHubClient_Eligible(t *testing.T) {
	c := NewGitHubClient("", 4, 100)

	if !c.eligible("main.go", 50) {
		t.Errorf("expected main.go under size limit to be eligible")
	}
	if c.eligible("main.go", 200) {
		t.Errorf("expected oversized file to be ineligible")
	}
	if c.eligible("image.png", 10) {
		t.Errorf("expected non-text extension to be ineligible")
	}
	if c.eligible("vendor/dep.go", 10) {
		t.Errorf("expected vendor/ path to be excluded")
	}
	if c.eligible("package.lock", 10) {
		t.Errorf("expected lockfile glob to be excluded")
	}
}

func TestLanguageHistogram(t *testing.T) {
	entries := []TreeEntry{
		{Path: "a.go", Language: "go"},
		{Path: "b.go", Language: "go"},
		{Path: "c.py", Language: "python"},
		{Path: "README.md", Language: ""},
	}

	got := LanguageHistogram(entries)
	want := map[string]int{"go": 2, "python": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LanguageHistogram() = %v, want %v", got, want)
	}
}

func TestBuildFileTree(t *testing.T) {
	entries := []TreeEntry{
		{Path: "main.go", Size: 10, Language: "go"},
		{Path: "pkg/util.go", Size: 20, Language: "go"},
		{Path: "pkg/sub/helper.go", Size: 30, Language: "go"},
	}

	tree := BuildFileTree(entries)

	mainNode, ok := tree["main.go"]
	if !ok || mainNode.Type != "file" || mainNode.Path != "main.go" {
		t.Fatalf("expected a file node at main.go, got %+v", mainNode)
	}

	pkgNode, ok := tree["pkg"]
	if !ok || pkgNode.Type != "folder" {
		t.Fatalf("expected a folder node at pkg, got %+v", pkgNode)
	}
	utilNode, ok := pkgNode.Children["util.go"]
	if !ok || utilNode.Path != "pkg/util.go" {
		t.Fatalf("expected pkg/util.go, got %+v", utilNode)
	}
	subNode, ok := pkgNode.Children["sub"]
	if !ok || subNode.Type != "folder" {
		t.Fatalf("expected a folder node at pkg/sub, got %+v", subNode)
	}
	helperNode, ok := subNode.Children["helper.go"]
	if !ok || helperNode.Path != "pkg/sub/helper.go" {
		t.Fatalf("expected pkg/sub/helper.go, got %+v", helperNode)
	}
}

func TestLanguageForExtension(t *testing.T) {
	tests := map[string]string{
		".go":  "go",
		".py":  "python",
		".tsx": "typescript",
		".xyz": "",
	}
	for ext, want := range tests {
		if got := languageForExtension(ext); got != want {
			t.Errorf("languageForExtension(%q) = %q, want %q", ext, got, want)
		}
	}
}
