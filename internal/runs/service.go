package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/chunker"
	"compliance-backend/internal/contracts"
	"compliance-backend/internal/extract"
	"compliance-backend/internal/llm"
	"compliance-backend/internal/orchestrator"
	"compliance-backend/internal/queue"
	"compliance-backend/internal/report"
	"compliance-backend/internal/resultstore"
	"compliance-backend/internal/shared/metrics"
	"compliance-backend/internal/shared/telemetry"
)

// Contracts resolves a run's contract and its text.
type Contracts interface {
	Get(ctx context.Context, ownerID, contractID string) (contracts.Contract, error)
	Text(ctx context.Context, c contracts.Contract) (string, error)
}

// Rewriter produces compliant rewrites for the report.
type Rewriter interface {
	ModifyClause(ctx context.Context, clause, riskLevel string, providers []llm.Provider) (string, error)
}

// Options select how a run segments, analyzes and writes.
type Options struct {
	Pipeline  string
	ChunkMode chunker.Mode
	WriteMode resultstore.WriteMode
}

// Service owns the run lifecycle: queued -> processing -> completed|failed.
type Service struct {
	Repo         Repo
	Contracts    Contracts
	Chunker      *chunker.Chunker
	Orchestrator *orchestrator.Orchestrator
	Rewriter     Rewriter
	// Queue, when set, hands runs to a worker instead of a goroutine.
	Queue    queue.Client
	Defaults Options
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create records a queued run for a contract and starts it.
func (s *Service) Create(ctx context.Context, ownerID, contractID string, opts Options) (Run, error) {
	if ownerID == "" || strings.TrimSpace(contractID) == "" {
		return Run{}, ErrInvalidInput
	}
	if _, err := s.Contracts.Get(ctx, ownerID, contractID); err != nil {
		return Run{}, err
	}
	opts = s.withDefaults(opts)

	run := Run{
		ID:         uuid.NewString(),
		ContractID: contractID,
		OwnerID:    ownerID,
		Status:     StatusQueued,
		Pipeline:   opts.Pipeline,
		ChunkMode:  string(opts.ChunkMode),
		WriteMode:  string(opts.WriteMode),
		CreatedAt:  s.now(),
	}
	if err := s.Repo.Create(ctx, run); err != nil {
		return Run{}, err
	}

	if s.Queue != nil {
		msg := queue.NewMessage(run.ID, telemetry.RequestID(ctx), s.now())
		if err := s.Queue.Send(ctx, msg); err != nil {
			s.fail(ctx, run, ErrorCodeStorage, fmt.Errorf("enqueue run: %w", err), nil)
			return Run{}, err
		}
		return run, nil
	}

	go s.processAsync(backgroundWithRequestID(ctx), run.ID)
	return run, nil
}

func (s *Service) withDefaults(opts Options) Options {
	if opts.Pipeline == "" {
		opts.Pipeline = s.Defaults.Pipeline
	}
	if opts.Pipeline != PipelineBatch {
		opts.Pipeline = PipelineClause
	}
	if opts.ChunkMode == "" {
		opts.ChunkMode = s.Defaults.ChunkMode
	}
	if opts.ChunkMode == "" {
		opts.ChunkMode = chunker.ModeSemantic
	}
	if opts.WriteMode == "" {
		opts.WriteMode = s.Defaults.WriteMode
	}
	if opts.WriteMode == "" {
		opts.WriteMode = resultstore.WriteAppend
	}
	return opts
}

// Get returns a run of an owner.
func (s *Service) Get(ctx context.Context, ownerID, runID string) (Run, error) {
	if strings.TrimSpace(runID) == "" {
		return Run{}, ErrInvalidInput
	}
	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	if run.OwnerID != ownerID {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// List returns an owner's runs newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Run, error) {
	if ownerID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *Service) processAsync(ctx context.Context, runID string) {
	defer func() {
		if r := recover(); r != nil {
			run, err := s.Repo.GetByID(context.Background(), runID)
			if err != nil {
				run = Run{ID: runID}
			}
			s.fail(ctx, run, ErrorCodeInternal, fmt.Errorf("panic: %v", r), nil)
		}
	}()
	_ = s.Process(ctx, runID)
}

// Process executes a queued run. It returns an error only when the failure
// is retryable, so queue consumers can leave the message for redelivery.
func (s *Service) Process(ctx context.Context, runID string) error {
	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("run lookup id=%s: %w", runID, err)
	}
	switch {
	case run.Status == StatusCompleted:
		return nil
	case run.Status == StatusFailed && !run.Retryable:
		return nil
	}
	if s.Contracts == nil || s.Chunker == nil || s.Orchestrator == nil {
		return s.fail(ctx, run, ErrorCodeInternal, ErrNotConfigured, nil)
	}

	startedAt := s.now()
	if err := s.Repo.MarkProcessing(ctx, run.ID, startedAt); err != nil {
		return s.fail(ctx, run, ErrorCodeStorage, fmt.Errorf("set processing: %w", err), &startedAt)
	}
	run.StartedAt = &startedAt
	metrics.IncRunStarted()
	s.logStatus(ctx, run, StatusProcessing, run.Status+"->processing", nil)

	contract, err := s.Contracts.Get(ctx, run.OwnerID, run.ContractID)
	if err != nil {
		return s.fail(ctx, run, ErrorCodeStorage, fmt.Errorf("contract lookup id=%s: %w", run.ContractID, err), &startedAt)
	}
	text, err := s.Contracts.Text(ctx, contract)
	if err != nil {
		return s.fail(ctx, run, ErrorCodeExtraction, fmt.Errorf("contract %s mime %s: %w", contract.ID, contract.MimeType, err), &startedAt)
	}

	chunked, err := s.Chunker.Chunk(ctx, text, chunker.ParseMode(run.ChunkMode))
	if err != nil {
		return s.fail(ctx, run, ErrorCodeInternal, fmt.Errorf("chunk contract: %w", err), &startedAt)
	}
	if len(chunked.Clauses) == 0 {
		return s.fail(ctx, run, ErrorCodeValidation, fmt.Errorf("%w: contract has no analyzable text", ErrInvalidInput), &startedAt)
	}

	orch := s.Orchestrator.WithMode(resultstore.ParseWriteMode(run.WriteMode))
	var outcome orchestrator.Outcome
	if run.Pipeline == PipelineBatch {
		outcome, err = orch.RunBatch(ctx, chunked.Clauses)
	} else {
		outcome, err = orch.Run(ctx, chunked.Clauses)
	}
	if err != nil {
		return s.fail(ctx, run, ErrorCodeInternal, fmt.Errorf("analyze contract: %w", err), &startedAt)
	}

	completedAt := s.now()
	run.ChunkMode = string(chunked.Mode)
	run.Degraded = chunked.Degraded
	run.DegradedReason = chunked.Reason
	run.ClauseCount = len(chunked.Clauses)
	run.StartID = outcome.StartID
	run.Results = outcome.Results
	run.Records = outcome.Records
	run.Failures = outcome.Dropped
	run.DroppedCount = len(outcome.Dropped)
	run.Analyzed = len(outcome.Results) + len(outcome.Records)
	run.Violations = 0
	for _, r := range outcome.Results {
		if r.Violation() {
			run.Violations++
		}
	}
	run.CompletedAt = &completedAt
	run.Status = StatusCompleted

	if err := s.Repo.Complete(ctx, run); err != nil {
		return s.fail(ctx, run, ErrorCodeStorage, fmt.Errorf("set run result: %w", err), &startedAt)
	}
	metrics.IncRunCompleted()
	metrics.ObserveRunDurationMs(durationMs(&startedAt, &completedAt))
	s.logStatus(ctx, run, StatusCompleted, "processing->completed", map[string]any{
		"duration_ms": durationMs(&startedAt, &completedAt),
		"clauses":     run.ClauseCount,
		"analyzed":    run.Analyzed,
		"dropped":     run.DroppedCount,
		"degraded":    run.Degraded,
		"violations":  run.Violations,
	})
	return nil
}

// fail records the failure and returns err when it is retryable.
func (s *Service) fail(ctx context.Context, run Run, fallback string, err error, startedAt *time.Time) error {
	code, retryable := classifyFailure(err, fallback)
	msg := sanitizeError(err)
	completedAt := s.now()
	if updateErr := s.Repo.Fail(context.Background(), run.ID, code, msg, retryable, completedAt); updateErr != nil {
		telemetry.Error("run.fail.update_failed", map[string]any{
			"run_id": run.ID,
			"error":  updateErr.Error(),
			"cause":  msg,
		})
	}
	metrics.IncRunFailed()
	if startedAt != nil {
		metrics.ObserveRunDurationMs(durationMs(startedAt, &completedAt))
	}
	s.logStatus(ctx, run, StatusFailed, "processing->failed", map[string]any{
		"error_code":  code,
		"retryable":   retryable,
		"error":       msg,
		"duration_ms": durationMs(startedAt, &completedAt),
	})
	if retryable {
		return err
	}
	return nil
}

func (s *Service) logStatus(ctx context.Context, run Run, status, transition string, extra map[string]any) {
	fields := map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           run.OwnerID,
		"contract_id":       run.ContractID,
		"run_id":            run.ID,
		"pipeline":          run.Pipeline,
		"status":            status,
		"status_transition": transition,
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("run.status", fields)
}

// Results returns the stored rows this run committed.
func (s *Service) Results(ctx context.Context, ownerID, runID string) (Run, resultstore.Schema, []resultstore.Row, error) {
	run, err := s.completed(ctx, ownerID, runID)
	if err != nil {
		return Run{}, resultstore.Schema{}, nil, err
	}
	schema, rows, err := s.Orchestrator.Store.ReadAll(ctx)
	if err != nil {
		return Run{}, resultstore.Schema{}, nil, err
	}
	out := make([]resultstore.Row, 0, run.ClauseCount)
	for _, row := range rows {
		if row.ClauseID >= run.StartID && row.ClauseID < run.EndID() {
			out = append(out, row)
		}
	}
	return run, schema, out, nil
}

// StoreSummary scores every row currently in the result store.
func (s *Service) StoreSummary(ctx context.Context) (Summary, error) {
	if s.Orchestrator == nil || s.Orchestrator.Store == nil {
		return Summary{}, ErrNotConfigured
	}
	schema, rows, err := s.Orchestrator.Store.ReadAll(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(schema, rows), nil
}

// Report renders the rewritten-clauses DOCX for a completed run. Missing
// rewrites are requested on demand; a rewrite
// that cannot be obtained is reported as not available.
func (s *Service) Report(ctx context.Context, ownerID, runID string) ([]byte, Run, error) {
	run, err := s.completed(ctx, ownerID, runID)
	if err != nil {
		return nil, Run{}, err
	}

	type item struct {
		id     int
		risk   string
		clause string
		mod    string
	}
	items := make([]item, 0, len(run.Results)+len(run.Records))
	for _, r := range run.Results {
		mod := r.ModifiedClause
		if mod == analysis.NoModification {
			mod = ""
		}
		items = append(items, item{id: r.ClauseID, risk: r.RiskLevel, clause: r.Clause, mod: mod})
	}
	for _, r := range run.Records {
		items = append(items, item{id: r.ClauseID, risk: r.RiskLevel, clause: r.Clause})
	}

	var providers []llm.Provider
	for i := range items {
		if items[i].mod != "" || s.Rewriter == nil {
			continue
		}
		if providers == nil {
			providers, err = s.Orchestrator.Providers.Available(ctx)
			if err != nil {
				telemetry.Warn("run.report.no_provider", map[string]any{"run_id": run.ID, "error": err.Error()})
				break
			}
		}
		mod, err := s.Rewriter.ModifyClause(ctx, items[i].clause, items[i].risk, providers)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, Run{}, ctxErr
			}
			continue
		}
		items[i].mod = mod
	}

	entries := make([]report.Entry, len(items))
	for i, it := range items {
		entries[i] = report.Entry{ClauseID: it.id, RiskLevel: it.risk, Clause: it.clause, ModifiedClause: it.mod}
	}
	meta := report.Meta{RunID: run.ID, GeneratedAt: s.now()}
	if c, err := s.Contracts.Get(ctx, ownerID, run.ContractID); err == nil {
		meta.ContractName = c.FileName
	}
	data, err := report.RenderDOCX(meta, entries)
	if err != nil {
		return nil, Run{}, err
	}
	return data, run, nil
}

func (s *Service) completed(ctx context.Context, ownerID, runID string) (Run, error) {
	run, err := s.Get(ctx, ownerID, runID)
	if err != nil {
		return Run{}, err
	}
	if run.Status != StatusCompleted {
		return Run{}, ErrNotCompleted
	}
	return run, nil
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

// classifyFailure maps a run error to an API error code and whether
// retrying the run could succeed.
func classifyFailure(err error, fallback string) (string, bool) {
	switch {
	case err == nil:
		return ErrorCodeInternal, false
	case errors.Is(err, llm.ErrNoProviderAvailable):
		return ErrorCodeNoProvider, true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, llm.ErrTimeout):
		return ErrorCodeLLMTimeout, true
	case errors.Is(err, resultstore.ErrConnectivity):
		return ErrorCodeStorage, true
	case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, extract.ErrNotFound):
		return ErrorCodeExtraction, false
	case errors.Is(err, ErrInvalidInput), errors.Is(err, contracts.ErrNotFound):
		return ErrorCodeValidation, false
	case errors.Is(err, context.Canceled), errors.Is(err, ErrNotConfigured):
		return ErrorCodeInternal, false
	}
	if fallback == "" {
		fallback = ErrorCodeInternal
	}
	return fallback, fallback == ErrorCodeStorage
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
