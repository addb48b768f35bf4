// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/cartograph/cartograph/internal/cli"
	"github.com/cartograph/cartograph/internal/config"
	"github.com/cartograph/cartograph/internal/embed"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/llm"
	q "github.com/cartograph/cartograph/internal/query"
	"github.com/cartograph/cartograph/internal/search"
	"github.com/cartograph/cartograph/internal/store"
)

// runQuery runs one conversational turn against an already-ingested
// repository, printing the streamed answer to stdout.
func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML defaults file")
	sessionID := fs.String("session", "", "Session ID (required)")
	jsonOutput := fs.Bool("json", false, "Emit SSE-equivalent events as JSON lines instead of prose")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cartograph query --session <id> <repo_id> <text>

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 || *sessionID == "" {
		fs.Usage()
		os.Exit(1)
	}
	repoID, queryText := fs.Arg(0), fs.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		cli.FatalError(errs.NewInternal("load configuration", err), *jsonOutput)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Store.URI)
	if err != nil {
		cli.FatalError(errs.NewInternal("open store", err), *jsonOutput)
	}
	defer s.Close()

	sess, err := s.GetSession(ctx, *sessionID)
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}
	repo, err := s.GetRepository(ctx, repoID)
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}

	prefProvider, prefModel := "", ""
	if sess.Preferences != nil {
		prefProvider, prefModel = sess.Preferences.Provider, sess.Preferences.Model
	}
	creds, err := llm.Resolve(prefProvider, prefModel, llm.Fallback{
		Provider: cfg.LLM.Provider, Model: cfg.LLM.Model, APIKey: cfg.LLM.APIKey,
	})
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}

	embedder := embed.NewGenerator(embed.NewOpenAIProvider(), cfg.Concurrency.EmbedWorkers, logger)
	searchEngine := search.New(s, embedder)
	chat := llm.NewOpenAICompatibleClient(cfg.Concurrency.LLMWorkers, logger)
	engine := q.New(s, searchEngine, chat, q.NewRegistry(), logger)

	events, err := engine.Query(ctx, *sessionID, repo, queryText, creds)
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}

	for ev := range events {
		switch ev.Kind {
		case q.EventToolCall:
			cli.Infof("tool_call %s %v", ev.Tool, ev.Args)
		case q.EventToolResult:
			cli.Infof("tool_result %s (%d)", ev.Tool, ev.ResultCount)
		case q.EventAnswerChunk:
			fmt.Print(ev.Content)
		case q.EventDone:
			fmt.Println()
		case q.EventError:
			fmt.Println()
			cli.Error(ev.ErrorMessage)
		}
	}
}
