// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package pipeline implements the ingestion orchestrator of spec
// §4.F: fetch → parse → persist → (dependencies ∥ chunk-embed ∥
// summarize) → summary-embed → overview → finalize. Grounded on
// pkg/ingestion/local_pipeline.go's LocalPipeline.Run stage sequence,
// generalized from the teacher's single parse→embed→write pipeline to
// this stage graph, using golang.org/x/sync/errgroup for the parallel
// stage fan-out where the teacher hand-rolls channels and
// sync.WaitGroup.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cartograph/cartograph/internal/concurrency"
	"github.com/cartograph/cartograph/internal/embed"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/fetch"
	"github.com/cartograph/cartograph/internal/llm"
	"github.com/cartograph/cartograph/internal/metrics"
	"github.com/cartograph/cartograph/internal/model"
	"github.com/cartograph/cartograph/internal/parse"
	"github.com/cartograph/cartograph/internal/resolve"
	"github.com/cartograph/cartograph/internal/store"
)

// batchSize is the "buckets of up to 100" discipline spec §4.F names
// for file-by-file stages.
const batchSize = 100

// progressWindow is the 500ms progress-write coalescing window.
const progressWindow = 500 * time.Millisecond

// overviewTopK is the "top-K (default 20) most imported-by Files"
// input to the overview call.
const overviewTopK = 20

// Orchestrator runs one Repository's ingestion end to end.
type Orchestrator struct {
	store    *store.Store
	host     fetch.HostClient
	parser   *parse.Pool
	llm      llm.Client
	embedder *embed.Generator
	llmLimit *concurrency.Limiter
	logger   *slog.Logger
}

// New builds an Orchestrator bounded to cLLM concurrent 4.D calls
// (spec §4.F's C_llm, default 6); fetch and embed concurrency are
// owned by host and embedder respectively.
func New(s *store.Store, host fetch.HostClient, parser *parse.Pool, llmClient llm.Client, embedder *embed.Generator, cLLM int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    s,
		host:     host,
		parser:   parser,
		llm:      llmClient,
		embedder: embedder,
		llmLimit: concurrency.NewLimiter(cLLM),
		logger:   logger,
	}
}

// isStageFatal reports whether err should abort the entire ingestion,
// per spec §4.F: "authentication, missing credentials, catastrophic
// rate-limit" — any error reaching a point where every subsequent call
// would fail identically, as opposed to one file's best-effort loss.
func isStageFatal(err error) bool {
	var ce *errs.CartographError
	if !errs.As(err, &ce) {
		return false
	}
	switch ce.Kind {
	case errs.KindUnauthorizedLLM, errs.KindInvalidInput, errs.KindNotFound,
		errs.KindRateLimitedHost, errs.KindRateLimitedLLM:
		return true
	default:
		return false
	}
}

// Run executes the full stage graph for repo, recording progress on
// task and persisting every intermediate result as it's produced.
func (o *Orchestrator) Run(ctx context.Context, task *model.Task, repo *model.Repository, chatCreds, embedCreds llm.Credentials) error {
	if err := o.store.SetTaskInProgress(ctx, task.TaskID); err != nil {
		return err
	}
	if err := o.store.UpdateRepositoryStatus(ctx, repo.RepoID, model.RepoProcessing, ""); err != nil {
		return err
	}

	progress := model.Progress{CurrentStep: model.StepQueued}
	coalescer := concurrency.NewCoalescer(progressWindow, func(p model.Progress) {
		if err := o.store.UpsertTaskProgress(ctx, task.TaskID, p); err != nil {
			o.logger.Warn("pipeline.progress.write.error", "task_id", task.TaskID, "err", err)
		}
	})
	defer coalescer.Close()
	// stageFanout runs stageChunkEmbed and summarizeFiles as sibling
	// errgroup goroutines, so advance is called concurrently; progressMu
	// serializes the read-modify-write and the Advances check below
	// keeps current_step from moving backward when the slower of the
	// two substages reports after the faster one already has.
	var progressMu sync.Mutex
	advance := func(step model.Step, processed, total int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if !progress.CurrentStep.Advances(step) {
			return
		}
		progress.CurrentStep = step
		progress.ProcessedFiles = processed
		progress.TotalFiles = total
		coalescer.Submit(progress)
	}

	o.logger.Info("pipeline.stage.start", "stage", "fetching", "repo_id", repo.RepoID)
	fetchStart := time.Now()
	files, err := o.stageFetch(ctx, repo, advance)
	metrics.ObservePipelineStage("fetching", time.Since(fetchStart))
	if err != nil {
		return o.fail(ctx, task, repo, "fetching", err)
	}

	o.logger.Info("pipeline.stage.start", "stage", "parsing", "repo_id", repo.RepoID, "file_count", len(files))
	parseStart := time.Now()
	err = o.stageParse(ctx, files, advance)
	metrics.ObservePipelineStage("parsing", time.Since(parseStart))
	if err != nil {
		return o.fail(ctx, task, repo, "parsing", err)
	}

	o.logger.Info("pipeline.stage.start", "stage", "fanout", "repo_id", repo.RepoID)
	fanoutStart := time.Now()
	err = o.stageFanout(ctx, repo, files, chatCreds, embedCreds, advance)
	metrics.ObservePipelineStage("fanout", time.Since(fanoutStart))
	if err != nil {
		return o.fail(ctx, task, repo, "fanout", err)
	}

	o.logger.Info("pipeline.stage.start", "stage", "embedding_summaries", "repo_id", repo.RepoID)
	summaryEmbedStart := time.Now()
	err = o.stageSummaryEmbed(ctx, repo.RepoID, files, embedCreds, advance)
	metrics.ObservePipelineStage("embedding_summaries", time.Since(summaryEmbedStart))
	if err != nil {
		return o.fail(ctx, task, repo, "embedding_summaries", err)
	}

	o.logger.Info("pipeline.stage.start", "stage", "overview", "repo_id", repo.RepoID)
	overviewStart := time.Now()
	err = o.stageOverview(ctx, repo, files, chatCreds, embedCreds, advance)
	metrics.ObservePipelineStage("overview", time.Since(overviewStart))
	if err != nil {
		return o.fail(ctx, task, repo, "overview", err)
	}

	advance(model.StepFinalizing, len(files), len(files))
	coalescer.Flush()
	if err := o.store.CompleteTask(ctx, task.TaskID); err != nil {
		return err
	}
	if err := o.store.UpdateRepositoryStatus(ctx, repo.RepoID, model.RepoCompleted, ""); err != nil {
		return err
	}
	o.logger.Info("pipeline.complete", "repo_id", repo.RepoID, "file_count", len(files))
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, task *model.Task, repo *model.Repository, stage string, err error) error {
	o.logger.Error("pipeline.stage.fatal", "stage", stage, "repo_id", repo.RepoID, "err", err)
	metrics.RecordStageFailure(stage)
	_ = o.store.FailTask(ctx, task.TaskID, err.Error())
	_ = o.store.UpdateRepositoryStatus(ctx, repo.RepoID, model.RepoFailed, err.Error())
	return fmt.Errorf("pipeline stage %s: %w", stage, err)
}

// stageFetch implements spec §4.F step 1: metadata, tree, then bounded
// per-blob content fetch, persisted in batches of batchSize.
func (o *Orchestrator) stageFetch(ctx context.Context, repo *model.Repository, advance func(model.Step, int, int)) ([]*model.File, error) {
	md, err := o.host.Metadata(ctx, repo.SourceURL)
	if err != nil {
		return nil, err
	}
	repo.Owner, repo.Name, repo.DefaultBranch = md.Owner, md.Name, md.DefaultBranch

	entries, err := o.host.Tree(ctx, md)
	if err != nil {
		return nil, err
	}
	advance(model.StepFetching, 0, len(entries))

	tree := fetch.BuildFileTree(entries)
	histogram := fetch.LanguageHistogram(entries)
	if err := o.store.UpdateRepositoryTree(ctx, repo.RepoID, tree, histogram); err != nil {
		return nil, err
	}
	if err := o.store.UpdateRepositoryFileCount(ctx, repo.RepoID, len(entries)); err != nil {
		return nil, err
	}
	repo.FileTree, repo.LanguagesHistogram, repo.FileCount = tree, histogram, len(entries)

	files := make([]*model.File, len(entries))
	processed := 0
	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		for i := start; i < end; i++ {
			e := entries[i]
			f := &model.File{
				RepoID:   repo.RepoID,
				Path:     e.Path,
				Language: e.Language,
				Size:     e.Size,
			}
			content, err := o.host.Blob(ctx, md, e.Path)
			if err != nil {
				if isStageFatal(err) {
					return nil, err
				}
				f.ProviderMeta.Error = err.Error()
				o.logger.Warn("pipeline.fetch.blob.error", "path", e.Path, "err", err)
				metrics.RecordFetchBlobError()
			} else {
				f.Content = string(content)
			}
			if err := o.store.UpsertFile(ctx, f); err != nil {
				return nil, err
			}
			files[i] = f
		}
		processed = end
		advance(model.StepFetching, processed, len(entries))
	}
	return files, nil
}

// stageParse implements spec §4.F step 2, persisted in batches.
func (o *Orchestrator) stageParse(ctx context.Context, files []*model.File, advance func(model.Step, int, int)) error {
	total := len(files)
	processed := 0
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		for i := start; i < end; i++ {
			f := files[i]
			res := o.parser.Parse(ctx, f.Language, f.Path, []byte(f.Content))
			f.Parsed = res.Parsed
			f.Functions = res.Functions
			f.Classes = res.Classes
			f.Imports = res.Imports
			if err := o.store.UpsertFile(ctx, f); err != nil {
				return err
			}
		}
		processed = end
		advance(model.StepParsing, processed, total)
	}
	return nil
}

// stageFanout implements spec §4.F step 3: dependencies, chunk
// embedding, and summarizing run concurrently via errgroup, each
// persisting its own fields so the others' writes never block on it.
func (o *Orchestrator) stageFanout(ctx context.Context, repo *model.Repository, files []*model.File, chatCreds, embedCreds llm.Credentials, advance func(model.Step, int, int)) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.stageDependencies(gctx, files)
	})
	g.Go(func() error {
		return o.stageChunkEmbed(gctx, repo.RepoID, files, embedCreds, advance)
	})
	g.Go(func() error {
		return o.summarizeFiles(gctx, files, chatCreds, advance)
	})

	return g.Wait()
}

func (o *Orchestrator) stageDependencies(ctx context.Context, files []*model.File) error {
	resolve.Resolve(files)
	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		for _, f := range files[start:end] {
			if err := o.store.UpsertFile(ctx, f); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) stageChunkEmbed(ctx context.Context, repoID string, files []*model.File, creds llm.Credentials, advance func(model.Step, int, int)) error {
	for _, f := range files {
		f.Chunks = buildChunks(f)
	}

	var texts []string
	for _, f := range files {
		for _, c := range f.Chunks {
			texts = append(texts, c.ChunkText)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := o.embedder.Embed(ctx, repoID, creds, texts)
	if err != nil {
		if isStageFatal(err) {
			return err
		}
		o.logger.Warn("pipeline.chunk_embed.batch.error", "repo_id", repoID, "err", err)
		return nil
	}

	cursor := 0
	processed := 0
	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		for _, f := range files[start:end] {
			for i := range f.Chunks {
				if cursor < len(vectors) {
					f.Chunks[i].Vector = vectors[cursor]
				}
				cursor++
			}
			f.Embedded = true
			if err := o.store.UpsertFile(ctx, f); err != nil {
				return err
			}
		}
		processed = end
		advance(model.StepEmbedding, processed, len(files))
	}
	return nil
}

func (o *Orchestrator) summarizeFiles(ctx context.Context, files []*model.File, creds llm.Credentials, advance func(model.Step, int, int)) error {
	processed := 0
	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		for _, f := range files[start:end] {
			if f.Content == "" {
				continue
			}
			err := o.llmLimit.Do(ctx, func(ctx context.Context) error {
				structural := llm.StructuralRecord{}
				for _, fn := range f.Functions {
					structural.Functions = append(structural.Functions, fn.Name)
				}
				for _, cl := range f.Classes {
					structural.Classes = append(structural.Classes, cl.Name)
				}
				structural.Imports = f.Imports

				summary, descriptions, serr := o.llm.SummarizeFile(ctx, creds, f.Language, f.Content, structural)
				if serr != nil {
					return serr
				}
				f.Summary = summary
				mergeChunkDescriptions(f, descriptions)
				return nil
			})
			if err != nil {
				if isStageFatal(err) {
					return err
				}
				f.ProviderMeta.Error = err.Error()
				o.logger.Warn("pipeline.summarize.file.error", "path", f.Path, "err", err)
			}
			if err := o.store.UpsertFile(ctx, f); err != nil {
				return err
			}
		}
		processed = end
		advance(model.StepSummarizing, processed, len(files))
	}
	return nil
}

// stageSummaryEmbed implements spec §4.F step 4.
func (o *Orchestrator) stageSummaryEmbed(ctx context.Context, repoID string, files []*model.File, creds llm.Credentials, advance func(model.Step, int, int)) error {
	var texts []string
	var withSummary []*model.File
	for _, f := range files {
		if f.Summary == "" {
			continue
		}
		texts = append(texts, f.Summary)
		withSummary = append(withSummary, f)
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := o.embedder.Embed(ctx, repoID, creds, texts)
	if err != nil {
		if isStageFatal(err) {
			return err
		}
		o.logger.Warn("pipeline.summary_embed.batch.error", "repo_id", repoID, "err", err)
		return nil
	}

	for start := 0; start < len(withSummary); start += batchSize {
		end := start + batchSize
		if end > len(withSummary) {
			end = len(withSummary)
		}
		for i := start; i < end; i++ {
			withSummary[i].SummaryVector = vectors[i]
			if err := o.store.UpsertFile(ctx, withSummary[i]); err != nil {
				return err
			}
		}
		advance(model.StepEmbedding, end, len(withSummary))
	}
	return nil
}

// stageOverview implements spec §4.F step 5: pick the top-K
// most-imported-by Files, call 4.D.overview, persist overview and
// overview_embedding.
func (o *Orchestrator) stageOverview(ctx context.Context, repo *model.Repository, files []*model.File, chatCreds, embedCreds llm.Credentials, advance func(model.Step, int, int)) error {
	ranked := make([]*model.File, len(files))
	copy(ranked, files)
	sort.SliceStable(ranked, func(i, j int) bool {
		ii, jj := len(ranked[i].Dependencies.ImportedBy), len(ranked[j].Dependencies.ImportedBy)
		if ii != jj {
			return ii > jj
		}
		return ranked[i].Path < ranked[j].Path
	})
	if len(ranked) > overviewTopK {
		ranked = ranked[:overviewTopK]
	}

	var summaries []llm.FileSummary
	for _, f := range ranked {
		if f.Summary == "" {
			continue
		}
		summaries = append(summaries, llm.FileSummary{Path: f.Path, Summary: f.Summary})
	}

	overview, err := o.llm.Overview(ctx, chatCreds, repo.Name, summaries)
	if err != nil {
		if isStageFatal(err) {
			return err
		}
		o.logger.Warn("pipeline.overview.error", "repo_id", repo.RepoID, "err", err)
		return nil
	}
	repo.Overview = overview

	vectors, err := o.embedder.Embed(ctx, repo.RepoID, embedCreds, []string{overview})
	if err != nil {
		if isStageFatal(err) {
			return err
		}
		o.logger.Warn("pipeline.overview_embed.error", "repo_id", repo.RepoID, "err", err)
		return o.store.UpdateRepositoryOverview(ctx, repo.RepoID, overview, nil)
	}
	repo.OverviewEmbedding = vectors[0]
	advance(model.StepOverview, len(files), len(files))
	return o.store.UpdateRepositoryOverview(ctx, repo.RepoID, overview, vectors[0])
}
