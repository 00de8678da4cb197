package main

// Consume queued runs from SQS:
//   SQS_QUEUE_URL=https://sqs.../runs go run ./cmd/worker

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"compliance-backend/internal/bootstrap"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/telemetry"
)

const defaultRegion = "us-east-1"

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	queueURL := strings.TrimSpace(cfg.QueueURL)
	if queueURL == "" {
		fatal("worker.config.invalid", "SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		fatal("worker.aws.config_failed", err.Error())
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		fatal("worker.bootstrap.failed", err.Error())
	}
	defer app.Close()
	if app.RunsService == nil {
		fatal("worker.bootstrap.failed", "run service not configured")
	}

	p := &poller{
		client:      sqs.NewFromConfig(awsCfg),
		queueURL:    queueURL,
		proc:        app.RunsService,
		concurrency: cfg.WorkerConcurrency,
		visibility:  int32(cfg.WorkerVisibilitySeconds),
		waitSeconds: 20,
	}
	p.run(ctx, time.Duration(cfg.WorkerShutdownSeconds)*time.Second)
}

func fatal(event, message string) {
	telemetry.Error(event, map[string]any{"error": message})
	os.Exit(1)
}
