package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageVersion is the current payload version. Workers reject newer
// payloads rather than guess at their shape.
const MessageVersion = 1

var (
	ErrMissingRunID       = errors.New("queue message has no runId")
	ErrUnsupportedVersion = errors.New("unsupported queue message version")
)

// Message asks a worker to process one queued run. The run row holds every
// option; the message only points at it.
type Message struct {
	RunID      string `json:"runId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage stamps a message for runID.
func NewMessage(runID, requestID string, now time.Time) Message {
	return Message{
		RunID:      runID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// Validate checks the fields a worker needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return ErrMissingRunID
	}
	if m.Version > MessageVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	return nil
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload. A missing version is read as the
// first one; a newer version is an error.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Version == 0 {
		msg.Version = 1
	}
	if msg.Version > MessageVersion {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, msg.Version)
	}
	return msg, nil
}
