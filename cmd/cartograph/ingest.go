// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/cartograph/cartograph/internal/cli"
	"github.com/cartograph/cartograph/internal/config"
	"github.com/cartograph/cartograph/internal/embed"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/fetch"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/output"
	"github.com/cartograph/cartograph/internal/parse"
	"github.com/cartograph/cartograph/internal/pipeline"
	"github.com/cartograph/cartograph/internal/store"
)

// runIngest ingests one repository end-to-end and blocks until the
// Task reaches a terminal state, printing progress as it advances.
func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML defaults file")
	jsonOutput := fs.Bool("json", false, "Emit the final Task as JSON instead of a progress bar")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cartograph ingest <github_url> [options]

Ingests a repository into a fresh session and blocks until the
ingestion Task reaches completed or failed.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	githubURL := fs.Arg(0)

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

	sess, err := s.CreateSession(ctx, uuid.NewString())
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}

	host := fetch.NewGitHubClient(cfg.Fetch.HostToken, cfg.Concurrency.FetchWorkers, cfg.Fetch.MaxBlobSizeBytes)
	md, err := host.Metadata(ctx, githubURL)
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}

	chatCreds, err := llm.Resolve("", "", llm.Fallback{Provider: cfg.LLM.Provider, Model: cfg.LLM.Model, APIKey: cfg.LLM.APIKey})
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}
	embedCreds, err := llm.Resolve("", "", llm.Fallback{Provider: cfg.LLM.Provider, Model: cfg.LLM.Model, APIKey: cfg.LLM.APIKey})
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}

	task := &model.Task{
		TaskID: uuid.NewString(), Kind: model.TaskProcessFiles, Status: model.TaskPending,
		Progress: model.Progress{CurrentStep: model.StepQueued},
	}
	if err := s.CreateTask(ctx, task); err != nil {
		cli.FatalError(err, *jsonOutput)
	}
	repo := &model.Repository{
		RepoID: uuid.NewString(), SessionID: sess.SessionID, SourceURL: githubURL,
		Owner: md.Owner, Name: md.Name, DefaultBranch: md.DefaultBranch,
		Status: model.RepoFetched, TaskID: task.TaskID,
	}
	if err := s.CreateRepository(ctx, repo); err != nil {
		cli.FatalError(err, *jsonOutput)
	}
	if err := s.AddRepoToSession(ctx, sess.SessionID, repo.RepoID); err != nil {
		cli.FatalError(err, *jsonOutput)
	}

	parser := parse.NewPool()
	chat := llm.NewOpenAICompatibleClient(cfg.Concurrency.LLMWorkers, logger)
	embedder := embed.NewGenerator(embed.NewOpenAIProvider(), cfg.Concurrency.EmbedWorkers, logger)
	orch := pipeline.New(s, host, parser, chat, embedder, cfg.Concurrency.LLMWorkers, logger)

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx, task, repo, chatCreds, embedCreds) }()

	if *jsonOutput {
		err := <-runErr
		final, getErr := s.GetTask(ctx, task.TaskID)
		if getErr == nil {
			_ = output.JSON(final)
		}
		if err != nil {
			os.Exit(1)
		}
		return
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("ingesting %s/%s", md.Owner, md.Name)),
		progressbar.OptionSpinnerType(14),
	)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-runErr:
			_ = bar.Finish()
			fmt.Println()
			if err != nil {
				cli.FatalError(err, false)
			}
			cli.Successf("ingestion complete: repo_id=%s file_count=%d", repo.RepoID, repo.FileCount)
			return
		case <-ticker.C:
			t, getErr := s.GetTask(ctx, task.TaskID)
			if getErr == nil {
				bar.Describe(fmt.Sprintf("%s (%d/%d files)", t.Progress.CurrentStep, t.Progress.ProcessedFiles, t.Progress.TotalFiles))
			}
			_ = bar.Add(1)
		}
	}
}
