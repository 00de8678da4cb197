package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"compliance-backend/internal/bootstrap"
	"compliance-backend/internal/mcptools"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/telemetry"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcptools.NewServer(&mcptools.Tools{
		Chunker:   app.Chunker,
		Analyzer:  app.Engine,
		Providers: app.Registry,
	}, version)
	telemetry.Info("mcp.server.started", map[string]any{"version": version})
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		telemetry.Error("mcp.server.stopped", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
