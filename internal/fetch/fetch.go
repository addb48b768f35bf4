// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package fetch resolves a source_url to repository metadata, a
// recursive file tree, and per-blob content against the source host's
// REST API (spec §4.A). It bounds in-flight blob fetches with
// internal/concurrency.Limiter and retries transport/rate-limit errors
// through internal/concurrency.Retry, exactly the pattern spec §9
// prescribes for "implicit event-loop concurrency" in the source.
package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/cartograph/cartograph/internal/concurrency"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/metrics"
	"github.com/cartograph/cartograph/internal/model"
)

// HostClient is the capability the pipeline depends on: resolve a
// source_url to metadata and a tree, then fetch individual blobs.
type HostClient interface {
	Metadata(ctx context.Context, sourceURL string) (Metadata, error)
	Tree(ctx context.Context, md Metadata) ([]TreeEntry, error)
	Blob(ctx context.Context, md Metadata, path string) ([]byte, error)
}

// Metadata is what spec §4.A calls "(1) metadata".
type Metadata struct {
	Owner         string
	Name          string
	DefaultBranch string
	Description   string
}

// TreeEntry is one text-eligible blob discovered in the recursive
// tree, pre-filtered by extension/size/gitignore policy.
type TreeEntry struct {
	Path     string
	Size     int64
	Language string
}

// defaultExcludeGlobs covers vendored lockfiles and build output the
// way phobologic-repoguide's skipDirs does, expressed as gitignore
// patterns since that's the matcher this package uses.
var defaultExcludeGlobs = []string{
	"node_modules/", "vendor/", ".git/", "dist/", "build/", "__pycache__/",
	"*.lock", "*.min.js", "*.map", "*.png", "*.jpg", "*.jpeg", "*.gif",
	"*.ico", "*.pdf", "*.zip", "*.tar", "*.gz", "*.woff", "*.woff2",
	"*.ttf", "*.eot", "*.mp4", "*.mp3", "*.wasm", "*.so", "*.dylib", "*.dll",
}

// GitHubClient is the HostClient implementation talking to the GitHub
// REST v3 API.
type GitHubClient struct {
	httpClient *http.Client
	token      string
	limiter    *concurrency.Limiter
	maxBlob    int64
	exclude    *ignore.GitIgnore
}

// NewGitHubClient builds a client bounded to cFetch concurrent blob
// fetches (spec §4.F's C_fetch, default 8) and an optional bearer
// token that raises the host-specific rate ceiling.
func NewGitHubClient(token string, cFetch int, maxBlobSizeBytes int64) *GitHubClient {
	if maxBlobSizeBytes <= 0 {
		maxBlobSizeBytes = 1 << 20
	}
	gi := ignore.CompileIgnoreLines(defaultExcludeGlobs...)
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		limiter:    concurrency.NewLimiter(cFetch),
		maxBlob:    maxBlobSizeBytes,
		exclude:    gi,
	}
}

// ownerRepo parses "https://github.com/{owner}/{repo}" (and the
// bare "owner/repo" shorthand) into its two path components.
func ownerRepo(sourceURL string) (owner, name string, err error) {
	trimmed := strings.TrimSpace(sourceURL)
	if trimmed == "" {
		return "", "", errs.New(errs.KindInvalidInput, "source_url is empty", "", "provide a GitHub repository URL", nil)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://github.com/" + trimmed
	}
	u, perr := url.Parse(trimmed)
	if perr != nil {
		return "", "", errs.New(errs.KindInvalidInput, "malformed source_url", perr.Error(), "provide a URL like https://github.com/owner/repo", perr)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errs.New(errs.KindInvalidInput, "source_url must name an owner and repository", u.Path, "provide a URL like https://github.com/owner/repo", nil)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

func (c *GitHubClient) do(ctx context.Context, method, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

// classify decides retryability for fetch calls: 5xx and 429 are
// retryable, with 429 (and secondary-rate-limit 403) treated as the
// rate-limit tier; everything else is fatal immediately.
func classify(resp *http.Response, err error) (retryable, rateLimited bool) {
	if err != nil {
		return true, false
	}
	if resp == nil {
		return false, false
	}
	switch {
	case resp.StatusCode == 429:
		return true, true
	case resp.StatusCode == 403 && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return true, true
	case resp.StatusCode >= 500:
		return true, false
	default:
		return false, false
	}
}

// Metadata fetches repo metadata per spec §4.A.
func (c *GitHubClient) Metadata(ctx context.Context, sourceURL string) (Metadata, error) {
	owner, name, err := ownerRepo(sourceURL)
	if err != nil {
		return Metadata{}, err
	}

	var md Metadata
	apiErr := concurrency.Retry(ctx, concurrency.DefaultTransportRetry(), concurrency.DefaultRateLimitRetry(),
		func(err error) (bool, bool) {
			if ce, ok := err.(*errs.CartographError); ok {
				return ce.Kind == errs.KindRateLimitedHost, ce.Kind == errs.KindRateLimitedHost
			}
			return false, false
		},
		func(ctx context.Context) error {
			resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("https://api.github.com/repos/%s/%s", owner, name))
			retryable, rateLimited := classify(resp, err)
			if err != nil {
				if retryable {
					return errs.NewRateLimitedHost("transport error contacting source host", err)
				}
				return errs.New(errs.KindInternal, "transport error contacting source host", "", "", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode == 404 {
				return errs.NewNotFound("repository not found")
			}
			if retryable {
				return errs.NewRateLimitedHost("source host rate limit", nil)
			}
			if resp.StatusCode != 200 {
				return errs.New(errs.KindInternal, fmt.Sprintf("source host returned %d", resp.StatusCode), "", "", nil)
			}
			var body struct {
				DefaultBranch string `json:"default_branch"`
				Description   string `json:"description"`
			}
			if derr := decodeJSON(resp, &body); derr != nil {
				return errs.New(errs.KindInternal, "malformed metadata response", "", "", derr)
			}
			_ = rateLimited
			md = Metadata{Owner: owner, Name: name, DefaultBranch: body.DefaultBranch, Description: body.Description}
			return nil
		},
		metrics.RecordFetchRetry,
	)
	if apiErr != nil {
		return Metadata{}, apiErr
	}
	return md, nil
}

// Tree fetches the recursive file tree and filters it to text-eligible
// blobs per the extension/size/exclude policy.
func (c *GitHubClient) Tree(ctx context.Context, md Metadata) ([]TreeEntry, error) {
	var entries []TreeEntry
	apiErr := concurrency.Retry(ctx, concurrency.DefaultTransportRetry(), concurrency.DefaultRateLimitRetry(),
		func(err error) (bool, bool) {
			if ce, ok := err.(*errs.CartographError); ok {
				return ce.Kind == errs.KindRateLimitedHost, ce.Kind == errs.KindRateLimitedHost
			}
			return false, false
		},
		func(ctx context.Context) error {
			u := fmt.Sprintf("https://api.github.com/repos/%s/%s/git/trees/%s?recursive=1", md.Owner, md.Name, md.DefaultBranch)
			resp, err := c.do(ctx, http.MethodGet, u)
			retryable, _ := classify(resp, err)
			if err != nil {
				if retryable {
					return errs.NewRateLimitedHost("transport error fetching tree", err)
				}
				return errs.New(errs.KindInternal, "transport error fetching tree", "", "", err)
			}
			defer resp.Body.Close()
			if retryable {
				return errs.NewRateLimitedHost("source host rate limit", nil)
			}
			if resp.StatusCode != 200 {
				return errs.New(errs.KindInternal, fmt.Sprintf("source host returned %d for tree", resp.StatusCode), "", "", nil)
			}
			var body struct {
				Tree []struct {
					Path string `json:"path"`
					Type string `json:"type"`
					Size int64  `json:"size"`
				} `json:"tree"`
			}
			if derr := decodeJSON(resp, &body); derr != nil {
				return errs.New(errs.KindInternal, "malformed tree response", "", "", derr)
			}
			for _, e := range body.Tree {
				if e.Type != "blob" {
					continue
				}
				if !c.eligible(e.Path, e.Size) {
					continue
				}
				entries = append(entries, TreeEntry{Path: e.Path, Size: e.Size, Language: languageForExtension(path.Ext(e.Path))})
			}
			return nil
		},
		metrics.RecordFetchRetry,
	)
	if apiErr != nil {
		return nil, apiErr
	}
	return entries, nil
}

// eligible applies the size ceiling and the gitignore-style exclude
// policy spec §4.A describes.
func (c *GitHubClient) eligible(p string, size int64) bool {
	if size > c.maxBlob {
		return false
	}
	if languageForExtension(path.Ext(p)) == "" {
		return false
	}
	if c.exclude != nil && c.exclude.MatchesPath(p) {
		return false
	}
	return true
}

// Blob fetches one file's raw content, bounded by the fetch limiter.
func (c *GitHubClient) Blob(ctx context.Context, md Metadata, p string) ([]byte, error) {
	var content []byte
	err := c.limiter.Do(ctx, func(ctx context.Context) error {
		return concurrency.Retry(ctx, concurrency.DefaultTransportRetry(), concurrency.DefaultRateLimitRetry(),
			func(err error) (bool, bool) {
				if ce, ok := err.(*errs.CartographError); ok {
					return ce.Kind == errs.KindRateLimitedHost, ce.Kind == errs.KindRateLimitedHost
				}
				return false, false
			},
			func(ctx context.Context) error {
				u := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/%s?ref=%s",
					md.Owner, md.Name, url.PathEscape(p), md.DefaultBranch)
				resp, err := c.do(ctx, http.MethodGet, u)
				retryable, _ := classify(resp, err)
				if err != nil {
					if retryable {
						return errs.NewRateLimitedHost("transport error fetching blob", err)
					}
					return errs.New(errs.KindInternal, "transport error fetching blob", "", "", err)
				}
				defer resp.Body.Close()
				if retryable {
					return errs.NewRateLimitedHost("source host rate limit", nil)
				}
				if resp.StatusCode == 404 {
					return errs.NewNotFound("blob not found: " + p)
				}
				if resp.StatusCode != 200 {
					return errs.New(errs.KindInternal, fmt.Sprintf("source host returned %d for blob", resp.StatusCode), "", "", nil)
				}
				var body struct {
					Content  string `json:"content"`
					Encoding string `json:"encoding"`
				}
				if derr := decodeJSON(resp, &body); derr != nil {
					return errs.New(errs.KindInternal, "malformed blob response", "", "", derr)
				}
				if body.Encoding != "base64" {
					content = []byte(body.Content)
					return nil
				}
				decoded, derr := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
				if derr != nil {
					return errs.New(errs.KindInternal, "malformed base64 blob content", "", "", derr)
				}
				content = decoded
				return nil
			},
			metrics.RecordFetchRetry,
		)
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// LanguageHistogram tallies tree entries by language, the way the
// repository language histogram is surfaced on the Repository view
// (SPEC_FULL §6 supplemented feature — computed at fetch time).
func LanguageHistogram(entries []TreeEntry) map[string]int {
	hist := make(map[string]int)
	for _, e := range entries {
		if e.Language == "" {
			continue
		}
		hist[e.Language]++
	}
	return hist
}

// BuildFileTree assembles the recursive model.TreeNode mapping spec
// §3 describes from a flat TreeEntry list.
func BuildFileTree(entries []TreeEntry) map[string]*model.TreeNode {
	root := make(map[string]*model.TreeNode)
	for _, e := range entries {
		segments := strings.Split(e.Path, "/")
		cur := root
		for i, seg := range segments {
			last := i == len(segments)-1
			node, ok := cur[seg]
			if !ok {
				if last {
					node = &model.TreeNode{Type: model.TreeFile, Path: e.Path, Size: e.Size, Language: e.Language}
				} else {
					node = &model.TreeNode{Type: model.TreeFolder, Children: make(map[string]*model.TreeNode)}
				}
				cur[seg] = node
			}
			if !last {
				if node.Children == nil {
					node.Children = make(map[string]*model.TreeNode)
				}
				cur = node.Children
			}
		}
	}
	return root
}

func decodeJSON(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

// SizeOf renders a byte count as a plain decimal string.
func SizeOf(n int64) string { return strconv.FormatInt(n, 10) }
