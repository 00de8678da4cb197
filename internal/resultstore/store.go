// Package resultstore persists ordered analysis rows.
package resultstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrConnectivity wraps backend failures of a store.
var ErrConnectivity = errors.New("result store unavailable")

// WriteMode selects clear-then-write or grow-only semantics.
type WriteMode string

const (
	WriteReplace WriteMode = "replace"
	WriteAppend  WriteMode = "append"
)

// ParseWriteMode defaults to append.
func ParseWriteMode(raw string) WriteMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(WriteReplace)) {
		return WriteReplace
	}
	return WriteAppend
}

// Schema is the fixed column order of a row form.
type Schema struct {
	Name   string
	Header []string
}

// Canonical per-clause form and the legacy batch form.
var (
	ClauseSchema = Schema{Name: "clause", Header: []string{"Clause ID", "Regulation", "Key Clauses", "Risk Level", "Risk %", "Summary"}}
	BatchSchema  = Schema{Name: "batch", Header: []string{"Clause ID", "Contract Clause", "Regulation", "Risk Level", "AI Analysis"}}
)

// SchemaByName resolves a stored schema name.
func SchemaByName(name string) (Schema, bool) {
	switch name {
	case ClauseSchema.Name:
		return ClauseSchema, true
	case BatchSchema.Name:
		return BatchSchema, true
	}
	return Schema{}, false
}

// Row is one stored line. Cells hold the columns after Clause ID.
type Row struct {
	ClauseID int
	Cells    []string
}

// Values returns the row as strings in header order.
func (r Row) Values() []string {
	return append([]string{strconv.Itoa(r.ClauseID)}, r.Cells...)
}

// Store is the external table the orchestrator commits to.
type Store interface {
	// NextID is one past the highest clause id present; 1 for an empty store.
	NextID(ctx context.Context) (int, error)
	Write(ctx context.Context, schema Schema, rows []Row, mode WriteMode) error
	// ReadAll returns rows ordered by clause id.
	ReadAll(ctx context.Context) (Schema, []Row, error)
}

// Prepare sorts rows by id, drops duplicate ids (the last one wins) and checks
// cell counts against the schema.
func Prepare(schema Schema, rows []Row) ([]Row, error) {
	want := len(schema.Header) - 1
	byID := make(map[int]Row, len(rows))
	for _, r := range rows {
		if len(r.Cells) != want {
			return nil, fmt.Errorf("row %d: %d cells, schema %s wants %d", r.ClauseID, len(r.Cells), schema.Name, want)
		}
		byID[r.ClauseID] = r
	}
	out := make([]Row, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sortRows(out)
	return out, nil
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ClauseID < rows[j].ClauseID })
}

func maxID(rows []Row) int {
	m := 0
	for _, r := range rows {
		if r.ClauseID > m {
			m = r.ClauseID
		}
	}
	return m
}
