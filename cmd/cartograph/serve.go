// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/cartograph/cartograph/internal/cli"
	"github.com/cartograph/cartograph/internal/config"
	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/server"
	"github.com/cartograph/cartograph/internal/store"
)

// runServe starts the HTTP API server until SIGINT/SIGTERM.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML defaults file")
	addr := fs.String("addr", "", "HTTP listen address (overrides config/env)")
	jsonOutput := fs.Bool("json", false, "Emit fatal errors as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cartograph serve [options]

Starts the HTTP API server: session/repository/query endpoints,
Prometheus metrics at /metrics, and health at /health.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		cli.FatalError(errs.NewInternal("load configuration", err), *jsonOutput)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg.Store.URI)
	if err != nil {
		cli.FatalError(errs.NewInternal("open store", err), *jsonOutput)
	}
	defer s.Close()

	srv := server.New(cfg, s, logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming query responses run unbounded
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	cli.Infof("cartograph listening on %s (env=%s)", cfg.ListenAddr, cfg.Env)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		cli.FatalError(errs.NewInternal("serve", err), *jsonOutput)
	}
	cli.Success("server stopped")
}
