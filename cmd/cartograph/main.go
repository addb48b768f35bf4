// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the cartograph CLI: serve the HTTP API,
// or drive ingestion and queries against a running (or local) store
// from the command line.
//
// Usage:
//
//	cartograph serve                   Start the HTTP API server
//	cartograph ingest <github_url>      Ingest a repository and wait for completion
//	cartograph query <repo_id> <text>   Run one query against an ingested repository
//	cartograph task <task_id>           Show a Task's status
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		runServe(args)
	case "ingest":
		runIngest(args)
	case "query":
		runQuery(args)
	case "task":
		runTask(args)
	case "--version", "version":
		fmt.Printf("cartograph %s (%s)\n", version, commit)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `cartograph - repository ingestion and RAG chat backend

Usage:
  cartograph <command> [options]

Commands:
  serve     Start the HTTP API server
  ingest    Ingest a repository and wait for completion
  query     Run one query against an ingested repository
  task      Show a Task's status
  version   Show version and exit
`)
}
