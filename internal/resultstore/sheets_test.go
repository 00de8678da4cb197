package resultstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// fakeSheet serves the values endpoints the store uses against an in-memory grid.
type fakeSheet struct {
	mu    sync.Mutex
	grid  [][]interface{}
	calls []string
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	var body sheets.ValueRange
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
	}
	switch {
	case strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		f.grid = nil
		_ = json.NewEncoder(w).Encode(map[string]any{})
	case strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		f.grid = append(f.grid, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{})
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		f.grid = append([][]interface{}(nil), body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{})
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get")
		values := f.grid
		switch {
		case strings.HasSuffix(path, "!1:1"):
			values = nil
			if len(f.grid) > 0 {
				values = f.grid[:1]
			}
		case strings.HasSuffix(path, "!A:A"):
			values = nil
			for _, line := range f.grid {
				values = append(values, line[:1])
			}
		}
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: values})
	default:
		http.NotFound(w, r)
	}
}

func newFakeSheetsStore(t *testing.T) (*SheetsStore, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("sheets.NewService: %v", err)
	}
	return NewSheetsStoreWithService(svc, "sheet-id", ""), fake
}

func TestSheetsStoreAppendWritesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeSheetsStore(t)

	if err := store.Write(ctx, ClauseSchema, []Row{clauseRow(1, "High")}, WriteAppend); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := store.Write(ctx, ClauseSchema, []Row{clauseRow(2, "Low")}, WriteAppend); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if len(fake.grid) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(fake.grid))
	}
	if fake.grid[0][0] != "Clause ID" {
		t.Fatalf("expected header first, got %v", fake.grid[0])
	}

	next, err := store.NextID(ctx)
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if next != 3 {
		t.Fatalf("expected next id 3, got %d", next)
	}
}

func TestSheetsStoreReplaceAndRead(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeSheetsStore(t)

	if err := store.Write(ctx, ClauseSchema, []Row{clauseRow(1, "High"), clauseRow(2, "Low")}, WriteReplace); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write(ctx, BatchSchema, []Row{row(4, "text", "None", "Low", "ok")}, WriteReplace); err != nil {
		t.Fatalf("Write: %v", err)
	}
	schema, rows, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if schema.Name != BatchSchema.Name {
		t.Fatalf("expected batch schema, got %s", schema.Name)
	}
	if len(rows) != 1 || rows[0].ClauseID != 4 || rows[0].Cells[3] != "ok" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if fake.calls[0] != "clear" {
		t.Fatalf("expected replace to clear first, got %v", fake.calls)
	}
}
