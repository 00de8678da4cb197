// Package workerproc decodes queued run messages and hands them to the run
// processor. The long-running worker and the Lambda handler share it.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"compliance-backend/internal/queue"
	"compliance-backend/internal/shared/telemetry"
)

// Processor executes one queued run.
type Processor interface {
	Process(ctx context.Context, runID string) error
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingRunID indicates a message without a run id.
type ErrMissingRunID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingRunID) Error() string { return "missing run id" }

// ErrProcess indicates processing failed after successful parsing. The
// message should be left on the queue for redelivery.
type ErrProcess struct {
	RunID     string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process run"
	}
	return "process run: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Unrecoverable reports whether a message can never succeed and should be
// deleted instead of retried.
func Unrecoverable(err error) bool {
	var empty ErrEmptyBody
	var decode ErrDecode
	var missing ErrMissingRunID
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &missing)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if msg.Validate() != nil {
		return msg, meta, ErrMissingRunID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, proc Processor, body string) error {
	if proc == nil {
		return errors.New("run processor not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}
	if msg.Validate() != nil {
		return ErrMissingRunID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	if err := proc.Process(telemetry.WithRequestID(ctx, msg.RequestID), msg.RunID); err != nil {
		return ErrProcess{RunID: msg.RunID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
