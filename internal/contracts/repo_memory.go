package contracts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for dev and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]Contract // ownerID -> contracts
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string][]Contract)}
}

func (r *MemoryRepo) Create(ctx context.Context, c Contract) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[c.OwnerID] = append(r.data[c.OwnerID], c)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, ownerID, contractID string) (Contract, error) {
	if err := ctx.Err(); err != nil {
		return Contract{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.data[ownerID] {
		if c.ID == contractID {
			return c, nil
		}
	}
	return Contract{}, ErrNotFound
}

// UpdateExtraction records the cached text key once; later calls are no-ops.
func (r *MemoryRepo) UpdateExtraction(ctx context.Context, ownerID, contractID, extractedKey string, extractedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.data[ownerID]
	for i := range list {
		if list[i].ID != contractID {
			continue
		}
		if list[i].ExtractedTextKey == "" {
			list[i].ExtractedTextKey = extractedKey
			list[i].ExtractedAt = &extractedAt
		}
		return nil
	}
	return ErrNotFound
}

// ListByOwner returns contracts newest first, honoring limit/offset.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	r.mu.RLock()
	list := append([]Contract(nil), r.data[ownerID]...)
	r.mu.RUnlock()

	if offset >= len(list) {
		return []Contract{}, nil
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
