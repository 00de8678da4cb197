package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Dialect is the placeholder style of a SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore keeps rows in the analysis_rows table. Postgres and SQLite share
// the same statements apart from placeholders.
type SQLStore struct {
	DB      *sql.DB
	Dialect Dialect
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{DB: db, Dialect: dialect}
}

// SQLiteSchema creates the table for the SQLite dialect; Postgres uses the
// goose migrations.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS analysis_rows (
	clause_id INTEGER PRIMARY KEY,
	schema_name TEXT NOT NULL,
	cells TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// EnsureSchema creates the table when running on SQLite.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if s.Dialect != DialectSQLite {
		return nil
	}
	if _, err := s.DB.ExecContext(ctx, SQLiteSchema); err != nil {
		return connectivity("ensure schema", err)
	}
	return nil
}

func (s *SQLStore) NextID(ctx context.Context) (int, error) {
	var next int
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(clause_id), 0) + 1 FROM analysis_rows`).Scan(&next)
	if err != nil {
		return 0, connectivity("next id", err)
	}
	return next, nil
}

// Write commits all rows in one transaction. Appending rows of a different
// schema than the stored one replaces the table.
func (s *SQLStore) Write(ctx context.Context, schema Schema, rows []Row, mode WriteMode) error {
	prepared, err := Prepare(schema, rows)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return connectivity("begin", err)
	}
	defer tx.Rollback()

	wipe := mode == WriteReplace
	if !wipe {
		var stored string
		err := tx.QueryRowContext(ctx, `SELECT schema_name FROM analysis_rows LIMIT 1`).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return connectivity("read schema", err)
		case stored != schema.Name:
			wipe = true
		}
	}
	if wipe {
		if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_rows`); err != nil {
			return connectivity("clear", err)
		}
	}

	upsert := s.rebind(`INSERT INTO analysis_rows (clause_id, schema_name, cells) VALUES (?, ?, ?)
ON CONFLICT (clause_id) DO UPDATE SET schema_name = excluded.schema_name, cells = excluded.cells, updated_at = CURRENT_TIMESTAMP`)
	for _, r := range prepared {
		cells, err := json.Marshal(r.Cells)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", r.ClauseID, err)
		}
		if _, err := tx.ExecContext(ctx, upsert, r.ClauseID, schema.Name, string(cells)); err != nil {
			return connectivity(fmt.Sprintf("write row %d", r.ClauseID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return connectivity("commit", err)
	}
	return nil
}

func (s *SQLStore) ReadAll(ctx context.Context) (Schema, []Row, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT clause_id, schema_name, cells FROM analysis_rows ORDER BY clause_id`)
	if err != nil {
		return Schema{}, nil, connectivity("read", err)
	}
	defer rows.Close()

	schema := ClauseSchema
	var out []Row
	for rows.Next() {
		var (
			id    int
			name  string
			cells string
		)
		if err := rows.Scan(&id, &name, &cells); err != nil {
			return Schema{}, nil, connectivity("scan", err)
		}
		if sc, ok := SchemaByName(name); ok {
			schema = sc
		}
		var values []string
		if err := json.Unmarshal([]byte(cells), &values); err != nil {
			return Schema{}, nil, fmt.Errorf("decode row %d: %w", id, err)
		}
		out = append(out, Row{ClauseID: id, Cells: values})
	}
	if err := rows.Err(); err != nil {
		return Schema{}, nil, connectivity("read", err)
	}
	return schema, out, nil
}

// rebind turns ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func connectivity(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnectivity, op, err)
}

var _ Store = (*SQLStore)(nil)
