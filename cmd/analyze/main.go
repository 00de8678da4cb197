package main

// Analyze a contract from the command line:
//   go run ./cmd/analyze -file contract.pdf -mode fixed -pipeline clause -write append
// or watch an inbox and analyze every PDF/DOCX dropped into it:
//   go run ./cmd/analyze -watch ./inbox -report ./reports

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"compliance-backend/internal/bootstrap"
	"compliance-backend/internal/chunker"
	"compliance-backend/internal/resultstore"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/telemetry"
	"compliance-backend/internal/watcher"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Format: "text"})

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		exitErr(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		exitErr(fmt.Sprintf("bootstrap: %v", err))
	}
	defer app.Close()

	p := pipeline{chunker: app.Chunker, orch: app.Orchestrator, rewriter: app.Engine}

	if opts.watchDir == "" {
		if err := p.analyzeFile(ctx, opts.file, opts, os.Stdout); err != nil {
			exitErr(err.Error())
		}
		return
	}

	w, err := watcher.New(nil, 0)
	if err != nil {
		exitErr(fmt.Sprintf("watcher: %v", err))
	}
	defer w.Close()
	events, err := w.Watch(ctx, opts.watchDir)
	if err != nil {
		exitErr(fmt.Sprintf("watch %s: %v", opts.watchDir, err))
	}
	fmt.Fprintf(os.Stdout, "watching %s for contracts\n", opts.watchDir)
	for path := range events {
		if err := p.analyzeFile(ctx, path, opts, os.Stdout); err != nil {
			telemetry.Error("analyze.file.failed", map[string]any{"path": path, "error": err.Error()})
		}
	}
}

func exitErr(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

// options are the parsed command line.
type options struct {
	file      string
	watchDir  string
	reportDir string
	mode      chunker.Mode
	pipeline  string
	write     resultstore.WriteMode
}

func validChoice(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
