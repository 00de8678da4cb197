package runs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for dev and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Run
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Run)}
}

func (r *MemoryRepo) Create(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[run.ID] = run
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.data[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	list := make([]Run, 0)
	for _, run := range r.data {
		if run.OwnerID == ownerID {
			list = append(list, run)
		}
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []Run{}, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}

func (r *MemoryRepo) MarkProcessing(ctx context.Context, runID string, startedAt time.Time) error {
	return r.update(ctx, runID, func(run *Run) {
		run.Status = StatusProcessing
		run.StartedAt = &startedAt
	})
}

func (r *MemoryRepo) Complete(ctx context.Context, done Run) error {
	return r.update(ctx, done.ID, func(run *Run) {
		owner, contract, created, started := run.OwnerID, run.ContractID, run.CreatedAt, run.StartedAt
		*run = done
		run.OwnerID, run.ContractID, run.CreatedAt = owner, contract, created
		if run.StartedAt == nil {
			run.StartedAt = started
		}
		run.Status = StatusCompleted
	})
}

func (r *MemoryRepo) Fail(ctx context.Context, runID, code, message string, retryable bool, completedAt time.Time) error {
	return r.update(ctx, runID, func(run *Run) {
		run.Status = StatusFailed
		run.ErrorCode = code
		run.ErrorMessage = message
		run.Retryable = retryable
		run.CompletedAt = &completedAt
	})
}

func (r *MemoryRepo) update(ctx context.Context, runID string, fn func(*Run)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.data[runID]
	if !ok {
		return ErrNotFound
	}
	fn(&run)
	r.data[runID] = run
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
