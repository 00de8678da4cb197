package main

// Build the queue-triggered Lambda binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker
// The event source mapping must enable ReportBatchItemFailures.

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"compliance-backend/internal/bootstrap"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/metrics"
	"compliance-backend/internal/shared/telemetry"
	"compliance-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		telemetry.Error("lambda.worker.bootstrap_failed", map[string]any{"error": err.Error()})
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		// Every record goes back to the queue; the error marks the invocation failed.
		return events.SQSEventResponse{BatchItemFailures: failAll(event.Records)}, initErr
	}
	return processRecords(ctx, app.RunsService, event.Records), nil
}

// processRecords reports retryable failures back to SQS. Unrecoverable
// records count as successes so the batch drops them.
func processRecords(ctx context.Context, proc workerproc.Processor, records []events.SQSMessage) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range records {
		metrics.IncJobsReceived()
		fields := map[string]any{"sqs_message_id": record.MessageId}
		if ctx.Err() != nil {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		err := workerproc.HandleMessage(ctx, proc, record.Body)
		switch {
		case err == nil:
			metrics.IncJobsCompleted()
		case workerproc.Unrecoverable(err):
			metrics.IncJobsDeletedUnrecoverable()
			fields["error"] = err.Error()
			telemetry.Error("lambda.run.unrecoverable", fields)
		default:
			metrics.IncJobsFailed()
			fields["error"] = err.Error()
			telemetry.Error("lambda.run.failed", fields)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func failAll(records []events.SQSMessage) []events.SQSBatchItemFailure {
	failures := make([]events.SQSBatchItemFailure, 0, len(records))
	for _, record := range records {
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return failures
}

func main() {
	lambda.Start(handler)
}
