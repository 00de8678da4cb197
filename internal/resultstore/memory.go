package resultstore

import (
	"context"
	"sync"
)

// MemoryStore keeps rows in process.
type MemoryStore struct {
	mu     sync.RWMutex
	schema Schema
	rows   []Row
}

// NewMemoryStore creates an empty store using the canonical schema.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schema: ClauseSchema}
}

func (s *MemoryStore) NextID(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maxID(s.rows) + 1, nil
}

func (s *MemoryStore) Write(ctx context.Context, schema Schema, rows []Row, mode WriteMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepared, err := Prepare(schema, rows)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == WriteReplace || s.schema.Name != schema.Name {
		s.schema = schema
		s.rows = prepared
		return nil
	}
	merged, err := Prepare(schema, append(append([]Row(nil), s.rows...), prepared...))
	if err != nil {
		return err
	}
	s.rows = merged
	return nil
}

func (s *MemoryStore) ReadAll(ctx context.Context) (Schema, []Row, error) {
	if err := ctx.Err(); err != nil {
		return Schema{}, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = Row{ClauseID: r.ClauseID, Cells: append([]string(nil), r.Cells...)}
	}
	return s.schema, out, nil
}

var _ Store = (*MemoryStore)(nil)
