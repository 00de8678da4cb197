package contracts

import (
	"context"
	"time"
)

// Repo persists contract metadata.
type Repo interface {
	Create(ctx context.Context, c Contract) error
	GetByID(ctx context.Context, ownerID, contractID string) (Contract, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Contract, error)
	UpdateExtraction(ctx context.Context, ownerID, contractID, extractedKey string, extractedAt time.Time) error
}
