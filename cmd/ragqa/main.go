// Package main provides the ragqa CLI: a retrieval-augmented chatbot over a
// directory of documents and a batch evaluator that scores its answers.
//
// # Basic Usage
//
// Build or refresh the vector index, optionally watching for changes:
//
//	ragqa index --watch
//
// Ask a single question or start an interactive session:
//
//	ragqa ask "What is the warranty period?"
//	ragqa chat --queries query.json
//
// Evaluate a labelled query set into a CSV report:
//
//	ragqa eval --queries query.json --out results_new.csv
//
// # Environment Variables
//
// Every configuration key can be set through a RAGQA_ variable, for
// example RAGQA_LLM_PROVIDER=openai or RAGQA_STORE_DRIVER=qdrant. A .env
// file in the working directory is loaded first.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
