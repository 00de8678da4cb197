package runs

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/orchestrator"
)

var columnNames = []string{
	"id", "contract_id", "owner_id", "status", "pipeline", "chunk_mode", "write_mode",
	"clause_count", "analyzed_count", "dropped_count", "degraded", "degraded_reason", "violation_count", "start_id",
	"payload", "error_code", "error_message", "retryable", "created_at", "started_at", "completed_at",
}

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return &PGRepo{DB: db}, mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations: %v", err)
		}
		db.Close()
	}
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	created := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO runs")).
		WithArgs("r1", "c1", "guest:g", StatusQueued, PipelineClause, "semantic", "append", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), Run{
		ID: "r1", ContractID: "c1", OwnerID: "guest:g", Status: StatusQueued,
		Pipeline: PipelineClause, ChunkMode: "semantic", WriteMode: "append", CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestPGRepoGetByIDDecodesPayload(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	created := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	finished := created.Add(5 * time.Second)
	payload, _ := json.Marshal(Payload{
		Results:  []analysis.Result{{ClauseID: 7, Clause: "c", RiskLevel: "Low"}},
		Failures: []orchestrator.TaskFailure{{ClauseID: 8, Reason: "all failed"}},
	})
	rows := sqlmock.NewRows(columnNames).AddRow(
		"r1", "c1", "guest:g", StatusCompleted, PipelineClause, "fixed", "append",
		2, 1, 1, true, "embedder down", 0, 7,
		payload, nil, nil, false, created, started, finished,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE id = $1")).WithArgs("r1").WillReturnRows(rows)

	run, err := repo.GetByID(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.StartID != 7 || run.EndID() != 9 || !run.Degraded || run.DegradedReason != "embedder down" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(run.Results) != 1 || run.Results[0].ClauseID != 7 || len(run.Failures) != 1 {
		t.Fatalf("payload not decoded: %+v", run)
	}
	if run.StartedAt == nil || !run.StartedAt.Equal(started) || run.CompletedAt == nil {
		t.Fatalf("timestamps not decoded: %+v", run)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE id = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoMarkProcessingMissingRow(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	started := time.Date(2026, time.May, 1, 9, 0, 1, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET status = $1, started_at = $2 WHERE id = $3")).
		WithArgs(StatusProcessing, started, "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkProcessing(context.Background(), "gone", started); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoComplete(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	finished := time.Date(2026, time.May, 1, 9, 0, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs")).
		WithArgs(StatusCompleted, "fixed", 3, 2, 1, false, "", 1, 4, jsonArg{}, &finished, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Complete(context.Background(), Run{
		ID: "r1", ChunkMode: "fixed", ClauseCount: 3, Analyzed: 2, DroppedCount: 1,
		Violations: 1, StartID: 4, CompletedAt: &finished,
		Results: []analysis.Result{{ClauseID: 4}, {ClauseID: 6}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestPGRepoFail(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	finished := time.Date(2026, time.May, 1, 9, 0, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs")).
		WithArgs(StatusFailed, ErrorCodeNoProvider, "no provider", true, finished, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Fail(context.Background(), "r1", ErrorCodeNoProvider, "no provider", true, finished); err != nil {
		t.Fatalf("fail: %v", err)
	}
}

// jsonArg matches any argument holding valid JSON.
type jsonArg struct{}

func (jsonArg) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	return ok && json.Valid(b)
}
