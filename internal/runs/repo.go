package runs

import (
	"context"
	"time"
)

// Repo persists runs.
type Repo interface {
	Create(ctx context.Context, run Run) error
	GetByID(ctx context.Context, runID string) (Run, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Run, error)
	MarkProcessing(ctx context.Context, runID string, startedAt time.Time) error
	// Complete stores counts and payload of a finished run.
	Complete(ctx context.Context, run Run) error
	Fail(ctx context.Context, runID, code, message string, retryable bool, completedAt time.Time) error
}
