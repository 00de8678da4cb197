package analysis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-backend/internal/llm"
)

func TestSafeParseMalformed(t *testing.T) {
	clauses := []string{"a", "b", "c"}
	recs := SafeParse("not json [{\"a\":1}", clauses, 10)
	require.Len(t, recs, len(clauses))
	for i, r := range recs {
		assert.Equal(t, Unknown, r.Regulation)
		assert.Equal(t, Unknown, r.RiskLevel)
		assert.Equal(t, ParseFailureNote, r.Analysis)
		assert.Equal(t, 10+i, r.ClauseID)
		assert.Equal(t, clauses[i], r.Clause)
	}
}

func TestSafeParseWellFormed(t *testing.T) {
	want := []BatchRecord{
		{ClauseID: 1, Clause: "a", Regulation: "GDPR", RiskLevel: "High", Analysis: "x"},
		{ClauseID: 2, Clause: "b", Regulation: "None", RiskLevel: "Low", Analysis: "y"},
	}
	raw, err := json.Marshal(want)
	require.NoError(t, err)
	assert.Equal(t, want, SafeParse(string(raw), []string{"a", "b"}, 1))
}

func TestSafeParseRecovery(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"fenced", "```json\n[{\"Clause ID\": 1, \"Contract Clause\": \"a\", \"Regulation\": \"CCPA\", \"Risk Level\": \"Medium\", \"AI Analysis\": \"see [note]\"}]\n```"},
		{"prose around", "Here you go: [{\"Clause ID\": \"1\", \"Contract Clause\": \"a\", \"Regulation\": \"CCPA\", \"Risk Level\": \"Medium\", \"AI Analysis\": \"see [note]\"}] hope it helps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := SafeParse(tt.content, []string{"a"}, 1)
			require.Len(t, recs, 1)
			assert.Equal(t, 1, recs[0].ClauseID)
			assert.Equal(t, "CCPA", recs[0].Regulation)
			assert.Equal(t, "see [note]", recs[0].Analysis)
		})
	}
}

func TestSafeParsePadsShortArray(t *testing.T) {
	recs := SafeParse(`[{"Clause ID": 1, "Contract Clause": "a", "Regulation": "GDPR", "Risk Level": "Low", "AI Analysis": "ok"}]`, []string{"a", "b"}, 1)
	require.Len(t, recs, 2)
	assert.Equal(t, "GDPR", recs[0].Regulation)
	assert.Equal(t, BatchRecord{ClauseID: 2, Clause: "b", Regulation: Unknown, RiskLevel: Unknown, Analysis: ParseFailureNote}, recs[1])
}

func TestValidateRecords(t *testing.T) {
	in := []BatchRecord{
		{ClauseID: 5, Clause: "a", Regulation: "GDPR", RiskLevel: "Low", Analysis: "fine"},
		{ClauseID: 6, Clause: "b"},
	}
	out := ValidateRecords(in, 5, []string{"a", "b", "c"})
	require.Len(t, out, 3)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, ValidationFailureNote, out[1].Analysis)
	assert.Equal(t, 7, out[2].ClauseID)
	assert.Equal(t, "c", out[2].Clause)
}

func TestAnalyzeBatchRetriesThenFallsBack(t *testing.T) {
	a := &fakeClient{err: &llm.StatusError{Status: 500}}
	b := &fakeClient{err: &llm.StatusError{Status: 502}}
	e := NewEngine([]llm.Provider{provider("a", a), provider("b", b)})
	var slept []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	recs, err := e.AnalyzeBatch(context.Background(), []string{"x", "y"}, 3)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 3, recs[0].ClauseID)
	assert.Equal(t, Unknown, recs[1].Regulation)
	assert.Equal(t, int32(2), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, []time.Duration{DefaultBatchBackoff, DefaultBatchBackoff}, slept)
}

func TestAnalyzeBatchSecondAttemptSucceeds(t *testing.T) {
	a := &fakeClient{err: &llm.StatusError{Status: 429}}
	b := &fakeClient{answer: `[{"Clause ID": 1, "Contract Clause": "x", "Regulation": "HIPAA", "Risk Level": "High", "AI Analysis": "phi"}]`}
	e := NewEngine([]llm.Provider{provider("a", a), provider("b", b)})
	e.sleep = func(context.Context, time.Duration) error { return nil }

	recs, err := e.AnalyzeBatch(context.Background(), []string{"x"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "HIPAA", recs[0].Regulation)
}

func TestAnalyzeBatchCancelledDuringBackoff(t *testing.T) {
	e := NewEngine([]llm.Provider{provider("a", &fakeClient{err: &llm.StatusError{Status: 500}})})
	e.BatchBackoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := e.AnalyzeBatch(ctx, []string{"x"}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchPromptCarriesIDs(t *testing.T) {
	p := batchPrompt([]string{"first", "second"}, 41)
	assert.Contains(t, p, `"Clause ID":41`)
	assert.Contains(t, p, `"Clause ID":42`)
}
