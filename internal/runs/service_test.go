package runs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/chunker"
	"compliance-backend/internal/contracts"
	"compliance-backend/internal/extract"
	"compliance-backend/internal/llm"
	"compliance-backend/internal/orchestrator"
	"compliance-backend/internal/queue"
	"compliance-backend/internal/resultstore"
	"compliance-backend/internal/shared/telemetry"
)

const contractText = `1. Payment. The Client shall pay every invoice within thirty days of receipt and late amounts accrue interest at one percent per month.

2. Data Protection. The Vendor may retain and sell personal data of customers to third parties without notice and keeps it indefinitely.

3. Liability. Neither party is liable for indirect damages and the total liability of the Vendor is capped at the fees paid in the prior month.`

type fakeContracts struct {
	contract contracts.Contract
	text     string
	textErr  error
}

func (f *fakeContracts) Get(_ context.Context, ownerID, contractID string) (contracts.Contract, error) {
	if ownerID != f.contract.OwnerID || contractID != f.contract.ID {
		return contracts.Contract{}, contracts.ErrNotFound
	}
	return f.contract, nil
}

func (f *fakeContracts) Text(context.Context, contracts.Contract) (string, error) {
	return f.text, f.textErr
}

type queueStub struct {
	mu       sync.Mutex
	messages []queue.Message
	err      error
}

func (q *queueStub) Send(_ context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

type staticProviders struct {
	err error
}

type okClient struct{}

func (okClient) ChatCompletion(context.Context, string, llm.CompletionRequest) (string, error) {
	return "ok", nil
}
func (okClient) ListModels(context.Context) ([]string, error) { return nil, nil }

func (s staticProviders) Available(context.Context) ([]llm.Provider, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []llm.Provider{&llm.DirectAPI{ProviderName: "p", ModelID: "m", Client: okClient{}}}, nil
}

// riskAnalyzer rates clauses mentioning personal data High and fails clauses
// containing "unreachable".
type riskAnalyzer struct{}

func (riskAnalyzer) AnalyzeClause(_ context.Context, clause string, _ []llm.Provider) (*analysis.Result, error) {
	if strings.Contains(clause, "unreachable") {
		return nil, analysis.ErrAllProvidersFailed
	}
	res := &analysis.Result{
		Clause:            clause,
		Regulation:        analysis.RegulationNone,
		RiskLevel:         analysis.RiskLow,
		RiskPercent:       "10",
		Summary:           "fine",
		KeyPhrases:        "payment terms",
		ModifiedClause:    analysis.NoModification,
		ModifiedRiskLevel: analysis.NotAvailable,
		RewriteStatus:     analysis.RewriteNotAttempted,
	}
	if strings.Contains(clause, "personal data") {
		res.Regulation = analysis.RegulationGDPR
		res.RiskLevel = analysis.RiskHigh
		res.RiskPercent = "90"
		res.ModifiedClause = "The Vendor shall not sell personal data."
		res.ModifiedRiskLevel = analysis.RiskMedium
		res.RewriteStatus = analysis.RewriteViolation
	}
	return res, nil
}

func (riskAnalyzer) AnalyzeBatch(_ context.Context, clauses []string, startID int) ([]analysis.BatchRecord, error) {
	out := make([]analysis.BatchRecord, len(clauses))
	for i, c := range clauses {
		out[i] = analysis.BatchRecord{ClauseID: startID + i, Clause: c, Regulation: analysis.RegulationGDPR, RiskLevel: analysis.RiskMedium, Analysis: "review"}
	}
	return out, nil
}

type fakeRewriter struct {
	calls int
}

func (f *fakeRewriter) ModifyClause(_ context.Context, clause, risk string, _ []llm.Provider) (string, error) {
	f.calls++
	if risk == analysis.RiskLow {
		return clause, nil
	}
	return "REWRITTEN: " + clause, nil
}

type testEnv struct {
	svc      *Service
	repo     *MemoryRepo
	store    *resultstore.MemoryStore
	queue    *queueStub
	contract *fakeContracts
	rewriter *fakeRewriter
}

func newTestEnv(t *testing.T, providers staticProviders) testEnv {
	t.Helper()
	repo := NewMemoryRepo()
	store := resultstore.NewMemoryStore()
	q := &queueStub{}
	fc := &fakeContracts{
		contract: contracts.Contract{ID: "c1", OwnerID: "guest:g", FileName: "msa.pdf", MimeType: extract.MimePDF},
		text:     contractText,
	}
	rw := &fakeRewriter{}
	svc := &Service{
		Repo:      repo,
		Contracts: fc,
		Chunker:   chunker.New(chunker.DefaultOptions()),
		Orchestrator: &orchestrator.Orchestrator{
			Providers: providers,
			Engine:    riskAnalyzer{},
			Store:     store,
			Workers:   3,
			BatchSize: 2,
		},
		Rewriter: rw,
		Queue:    q,
		Defaults: Options{Pipeline: PipelineClause, ChunkMode: chunker.ModeFixed, WriteMode: resultstore.WriteAppend},
	}
	return testEnv{svc: svc, repo: repo, store: store, queue: q, contract: fc, rewriter: rw}
}

func TestCreateQueuesRun(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	ctx := telemetry.WithRequestID(context.Background(), "req-1")

	run, err := env.svc.Create(ctx, "guest:g", "c1", Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if run.Status != StatusQueued || run.Pipeline != PipelineClause || run.WriteMode != "append" || run.ChunkMode != "fixed" {
		t.Fatalf("unexpected run defaults: %+v", run)
	}
	if len(env.queue.messages) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(env.queue.messages))
	}
	msg := env.queue.messages[0]
	if msg.RunID != run.ID || msg.RequestID != "req-1" || msg.Version != queue.MessageVersion {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestCreateUnknownContract(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	if _, err := env.svc.Create(context.Background(), "guest:g", "missing", Options{}); !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("expected contracts.ErrNotFound, got %v", err)
	}
}

func TestProcessCompletesClausePipeline(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	ctx := context.Background()
	run, err := env.svc.Create(ctx, "guest:g", "c1", Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.svc.Process(ctx, run.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, err := env.svc.Get(ctx, "guest:g", run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.ClauseCount == 0 || got.Analyzed != got.ClauseCount || got.DroppedCount != 0 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.StartID != 1 || got.Violations == 0 {
		t.Fatalf("expected start id 1 and a violation, got start=%d violations=%d", got.StartID, got.Violations)
	}
	for i, r := range got.Results {
		if r.ClauseID != got.StartID+i {
			t.Fatalf("results out of order at %d: %d", i, r.ClauseID)
		}
	}

	_, schema, rows, err := env.svc.Results(ctx, "guest:g", run.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if schema.Name != resultstore.ClauseSchema.Name || len(rows) != got.Analyzed {
		t.Fatalf("unexpected stored rows: schema=%s rows=%d", schema.Name, len(rows))
	}

	// Completed runs are not processed twice.
	if err := env.svc.Process(ctx, run.ID); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	_, _, rowsAfter, _ := env.svc.Results(ctx, "guest:g", run.ID)
	if len(rowsAfter) != len(rows) {
		t.Fatalf("reprocessing changed stored rows")
	}
}

func TestProcessAppendRebasesSecondRun(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	ctx := context.Background()

	first, _ := env.svc.Create(ctx, "guest:g", "c1", Options{})
	if err := env.svc.Process(ctx, first.ID); err != nil {
		t.Fatalf("process first: %v", err)
	}
	second, _ := env.svc.Create(ctx, "guest:g", "c1", Options{})
	if err := env.svc.Process(ctx, second.ID); err != nil {
		t.Fatalf("process second: %v", err)
	}

	a, _ := env.svc.Get(ctx, "guest:g", first.ID)
	b, _ := env.svc.Get(ctx, "guest:g", second.ID)
	if b.StartID != a.EndID() {
		t.Fatalf("expected second run to start at %d, got %d", a.EndID(), b.StartID)
	}
	_, rows, _ := env.store.ReadAll(ctx)
	if len(rows) != a.Analyzed+b.Analyzed {
		t.Fatalf("expected %d stored rows, got %d", a.Analyzed+b.Analyzed, len(rows))
	}
}

func TestProcessBatchPipeline(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	ctx := context.Background()
	run, err := env.svc.Create(ctx, "guest:g", "c1", Options{Pipeline: PipelineBatch, WriteMode: resultstore.WriteReplace})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.svc.Process(ctx, run.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := env.svc.Get(ctx, "guest:g", run.ID)
	if got.Status != StatusCompleted || len(got.Records) != got.ClauseCount {
		t.Fatalf("unexpected batch run: %+v", got)
	}
	schema, _, _ := env.store.ReadAll(ctx)
	if schema.Name != resultstore.BatchSchema.Name {
		t.Fatalf("expected batch schema, got %s", schema.Name)
	}
}

func TestProcessNoProviderFailsRetryable(t *testing.T) {
	env := newTestEnv(t, staticProviders{err: fmt.Errorf("%w: groq: auth", llm.ErrNoProviderAvailable)})
	ctx := context.Background()
	run, _ := env.svc.Create(ctx, "guest:g", "c1", Options{})

	err := env.svc.Process(ctx, run.ID)
	if !errors.Is(err, llm.ErrNoProviderAvailable) {
		t.Fatalf("expected retryable no-provider error, got %v", err)
	}
	got, _ := env.svc.Get(ctx, "guest:g", run.ID)
	if got.Status != StatusFailed || got.ErrorCode != ErrorCodeNoProvider || !got.Retryable {
		t.Fatalf("unexpected failed run: %+v", got)
	}
	if _, rows, _ := env.store.ReadAll(ctx); len(rows) != 0 {
		t.Fatalf("store must not be written, got %d rows", len(rows))
	}
}

func TestProcessExtractionFailureIsFinal(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	env.contract.textErr = fmt.Errorf("%w: text/plain", extract.ErrUnsupportedFormat)
	ctx := context.Background()
	run, _ := env.svc.Create(ctx, "guest:g", "c1", Options{})

	if err := env.svc.Process(ctx, run.ID); err != nil {
		t.Fatalf("non-retryable failures are not returned, got %v", err)
	}
	got, _ := env.svc.Get(ctx, "guest:g", run.ID)
	if got.Status != StatusFailed || got.ErrorCode != ErrorCodeExtraction || got.Retryable {
		t.Fatalf("unexpected failed run: %+v", got)
	}
}

func TestProcessEmptyTextFailsValidation(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	env.contract.text = "   "
	ctx := context.Background()
	run, _ := env.svc.Create(ctx, "guest:g", "c1", Options{})
	_ = env.svc.Process(ctx, run.ID)
	got, _ := env.svc.Get(ctx, "guest:g", run.ID)
	if got.ErrorCode != ErrorCodeValidation {
		t.Fatalf("expected validation error code, got %q", got.ErrorCode)
	}
}

func TestCreateWithoutQueueProcessesAsync(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	env.svc.Queue = nil
	ctx := context.Background()
	run, err := env.svc.Create(ctx, "guest:g", "c1", Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := env.repo.GetByID(ctx, run.ID)
		if got.Status == StatusCompleted {
			return
		}
		if got.Status == StatusFailed {
			t.Fatalf("run failed: %s", got.ErrorMessage)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not complete in time")
}

func TestReportFillsMissingRewrites(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	ctx := context.Background()
	run, _ := env.svc.Create(ctx, "guest:g", "c1", Options{})
	if err := env.svc.Process(ctx, run.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	data, _, err := env.svc.Report(ctx, "guest:g", run.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	text, err := extract.ExtractTextFromBytes(ctx, data, extract.MimeDOCX, "report.docx")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(text, "The Vendor shall not sell personal data.") {
		t.Fatalf("report missing stored rewrite:\n%s", text)
	}
	if !strings.Contains(text, "Contract: msa.pdf") {
		t.Fatalf("report missing contract name:\n%s", text)
	}
	if env.rewriter.calls == 0 {
		t.Fatal("expected low-risk clauses without a rewrite to be filled in")
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatal("report is not a zip package")
	}
}

func TestReportRequiresCompletedRun(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	run, _ := env.svc.Create(context.Background(), "guest:g", "c1", Options{})
	if _, _, err := env.svc.Report(context.Background(), "guest:g", run.ID); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
}

func TestGetScopedToOwner(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	run, _ := env.svc.Create(context.Background(), "guest:g", "c1", Options{})
	if _, err := env.svc.Get(context.Background(), "guest:other", run.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		fallback  string
		code      string
		retryable bool
	}{
		{"no provider", llm.ErrNoProviderAvailable, "", ErrorCodeNoProvider, true},
		{"deadline", fmt.Errorf("analyze: %w", context.DeadlineExceeded), "", ErrorCodeLLMTimeout, true},
		{"store", fmt.Errorf("commit: %w", resultstore.ErrConnectivity), "", ErrorCodeStorage, true},
		{"unsupported", extract.ErrUnsupportedFormat, ErrorCodeExtraction, ErrorCodeExtraction, false},
		{"invalid", ErrInvalidInput, "", ErrorCodeValidation, false},
		{"storage fallback", errors.New("disk"), ErrorCodeStorage, ErrorCodeStorage, true},
		{"unknown", errors.New("boom"), "", ErrorCodeInternal, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, retryable := classifyFailure(tc.err, tc.fallback)
			if code != tc.code || retryable != tc.retryable {
				t.Fatalf("got %s/%v want %s/%v", code, retryable, tc.code, tc.retryable)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	msg := sanitizeError(errors.New("line1\nline2\r" + strings.Repeat("x", 600)))
	if strings.ContainsAny(msg, "\r\n") || len(msg) != 500 {
		t.Fatalf("unexpected sanitized message (len %d): %q", len(msg), msg[:20])
	}
}
