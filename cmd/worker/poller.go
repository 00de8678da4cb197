package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"compliance-backend/internal/shared/metrics"
	"compliance-backend/internal/shared/telemetry"
	"compliance-backend/internal/workerproc"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// poller long-polls the run queue and processes up to concurrency runs at
// once. A run takes minutes of provider calls, so the visibility timeout must
// outlast the slowest run or the message is redelivered mid-flight.
type poller struct {
	client      sqsAPI
	queueURL    string
	proc        workerproc.Processor
	concurrency int
	visibility  int32
	waitSeconds int32
}

// run polls until ctx is cancelled, then gives in-flight runs up to grace to
// finish before cancelling them too.
func (p *poller) run(ctx context.Context, grace time.Duration) {
	// In-flight work must not die with the poll context.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	sem := make(chan struct{}, max(1, p.concurrency))
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue_url":   p.queueURL,
		"concurrency": cap(sem),
		"visibility":  p.visibility,
	})

poll:
	for ctx.Err() == nil {
		resp, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(p.queueURL),
			MaxNumberOfMessages: int32(min(10, cap(sem))),
			WaitTimeSeconds:     p.waitSeconds,
			VisibilityTimeout:   p.visibility,
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
				sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				break
			}
			telemetry.Warn("worker.receive.failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break poll
			case sem <- struct{}{}:
			}
			metrics.IncJobsReceived()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(workCtx, p.client, p.queueURL, p.proc, msg)
			}()
		}
	}

	telemetry.Info("worker.draining", map[string]any{"grace": grace.String()})
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		telemetry.Warn("worker.drain.timeout", nil)
		cancelWork()
		<-done
	}
	telemetry.Info("worker.stopped", nil)
}

// handleMessage processes one delivery. Successful and unrecoverable messages
// are deleted; anything else stays on the queue for redelivery.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, proc workerproc.Processor, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, decoded.RunID, decoded.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.run.unrecoverable", fields)
		if deleteMessage(ctx, client, queueURL, msg, fields) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}

	fields := baseFields(msg, decoded.RunID, decoded.RequestID)
	telemetry.Info("worker.run.received", fields)

	if err := workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), proc, body); err != nil {
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) && procErr.Err != nil {
			err = procErr.Err
		}
		failed := baseFields(msg, decoded.RunID, decoded.RequestID)
		failed["error"] = err.Error()
		telemetry.Error("worker.run.failed", failed)
		metrics.IncJobsFailed()
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, fields) {
		telemetry.Info("worker.run.completed", fields)
		metrics.IncJobsCompleted()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		telemetry.Error("worker.run.delete_failed", withError(fields, "missing receipt handle"))
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		telemetry.Error("worker.run.delete_failed", withError(fields, err.Error()))
		return false
	}
	return true
}

func withError(fields map[string]any, msg string) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = msg
	return out
}

func baseFields(msg sqstypes.Message, runID, requestID string) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if runID != "" {
		fields["run_id"] = runID
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	n, err := strconv.Atoi(msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil {
		return 0
	}
	return n
}
