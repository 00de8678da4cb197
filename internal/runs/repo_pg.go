package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const runColumns = `id, contract_id, owner_id, status, pipeline, chunk_mode, write_mode,
	clause_count, analyzed_count, dropped_count, degraded, degraded_reason, violation_count, start_id,
	payload, error_code, error_message, retryable, created_at, started_at, completed_at`

func (r *PGRepo) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO runs (id, contract_id, owner_id, status, pipeline, chunk_mode, write_mode, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		run.ID,
		run.ContractID,
		run.OwnerID,
		run.Status,
		run.Pipeline,
		run.ChunkMode,
		run.WriteMode,
		run.CreatedAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// ListByOwner lists runs newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *PGRepo) MarkProcessing(ctx context.Context, runID string, startedAt time.Time) error {
	const query = `UPDATE runs SET status = $1, started_at = $2 WHERE id = $3`
	return execOne(ctx, r.DB, query, StatusProcessing, startedAt, runID)
}

func (r *PGRepo) Complete(ctx context.Context, run Run) error {
	payload, err := json.Marshal(run.payload())
	if err != nil {
		return fmt.Errorf("marshal run payload: %w", err)
	}
	const query = `
UPDATE runs
SET status = $1, chunk_mode = $2, clause_count = $3, analyzed_count = $4, dropped_count = $5,
	degraded = $6, degraded_reason = $7, violation_count = $8, start_id = $9, payload = $10,
	completed_at = $11
WHERE id = $12`
	return execOne(ctx, r.DB, query,
		StatusCompleted,
		run.ChunkMode,
		run.ClauseCount,
		run.Analyzed,
		run.DroppedCount,
		run.Degraded,
		run.DegradedReason,
		run.Violations,
		run.StartID,
		payload,
		run.CompletedAt,
		run.ID,
	)
}

func (r *PGRepo) Fail(ctx context.Context, runID, code, message string, retryable bool, completedAt time.Time) error {
	const query = `
UPDATE runs
SET status = $1, error_code = $2, error_message = $3, retryable = $4, completed_at = $5
WHERE id = $6`
	return execOne(ctx, r.DB, query, StatusFailed, code, message, retryable, completedAt, runID)
}

func execOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var chunkMode, degradedReason, errCode, errMsg sql.NullString
	var payload []byte
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(
		&run.ID,
		&run.ContractID,
		&run.OwnerID,
		&run.Status,
		&run.Pipeline,
		&chunkMode,
		&run.WriteMode,
		&run.ClauseCount,
		&run.Analyzed,
		&run.DroppedCount,
		&run.Degraded,
		&degradedReason,
		&run.Violations,
		&run.StartID,
		&payload,
		&errCode,
		&errMsg,
		&run.Retryable,
		&run.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return Run{}, err
	}
	run.ChunkMode = chunkMode.String
	run.DegradedReason = degradedReason.String
	run.ErrorCode = errCode.String
	run.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if len(payload) > 0 {
		var p Payload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Run{}, fmt.Errorf("decode run payload id=%s: %w", run.ID, err)
		}
		run.Results, run.Records, run.Failures = p.Results, p.Records, p.Failures
	}
	return run, nil
}

var _ Repo = (*PGRepo)(nil)
