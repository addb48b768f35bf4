// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/cartograph/cartograph/internal/cli"
	"github.com/cartograph/cartograph/internal/config"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/output"
	"github.com/cartograph/cartograph/internal/store"
)

// runTask prints one Task's status.
func runTask(args []string) {
	fs := flag.NewFlagSet("task", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML defaults file")
	jsonOutput := fs.Bool("json", false, "Emit the Task as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartograph task <task_id> [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		cli.FatalError(errs.NewInternal("load configuration", err), *jsonOutput)
	}

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Store.URI)
	if err != nil {
		cli.FatalError(errs.NewInternal("open store", err), *jsonOutput)
	}
	defer s.Close()

	task, err := s.GetTask(ctx, fs.Arg(0))
	if err != nil {
		cli.FatalError(err, *jsonOutput)
	}

	if *jsonOutput {
		_ = output.JSON(task)
		return
	}

	cli.Header(fmt.Sprintf("Task %s", task.TaskID))
	fmt.Printf("%s: %s\n", cli.Label("status"), task.Status)
	fmt.Printf("%s: %s\n", cli.Label("step"), task.Progress.CurrentStep)
	fmt.Printf("%s: %d/%d files\n", cli.Label("progress"), task.Progress.ProcessedFiles, task.Progress.TotalFiles)
	if task.Error != "" {
		cli.Error(task.Error)
	}
}
