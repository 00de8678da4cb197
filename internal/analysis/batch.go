package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"compliance-backend/internal/llm"
	"compliance-backend/internal/shared/metrics"
	"compliance-backend/internal/shared/telemetry"
)

// Analysis notes of fallback records.
const (
	ParseFailureNote      = "Failed to parse AI output."
	ValidationFailureNote = "Failed validation."
)

var arrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// AnalyzeBatch analyzes clauses with one JSON-array prompt. Call failures are
// retried across the batch rotation; when they are exhausted every clause gets
// a fallback record. The only error is context cancellation.
func (e *Engine) AnalyzeBatch(ctx context.Context, clauses []string, startID int) ([]BatchRecord, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	retries := e.BatchRetries
	if retries <= 0 {
		retries = DefaultBatchRetries
	}
	sleep := e.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	req := llm.CompletionRequest{
		Prompt:      batchPrompt(clauses, startID),
		MaxTokens:   batchMaxTokens,
		Temperature: llm.Temperature(0),
	}

	if len(e.BatchProviders) == 0 {
		telemetry.Warn("analysis.batch.no_providers", map[string]any{"start_id": startID})
		return fallbackRecords(clauses, startID, ParseFailureNote), nil
	}

	for attempt := 0; attempt < retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := e.BatchProviders[attempt%len(e.BatchProviders)]
		content, err := p.Complete(ctx, req)
		if err == nil {
			return SafeParse(content, clauses, startID), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.IncProviderFailure(p.Name())
		telemetry.Warn("analysis.batch.attempt_failed", map[string]any{
			"attempt":  attempt + 1,
			"provider": p.Name(),
			"model":    p.Model(),
			"error":    err.Error(),
		})
		if attempt < retries-1 {
			if err := sleep(ctx, e.BatchBackoff); err != nil {
				return nil, err
			}
		}
	}
	metrics.AddBatchFallbacks(len(clauses))
	return fallbackRecords(clauses, startID, ParseFailureNote), nil
}

// SafeParse turns a model answer into one record per clause. It tries a
// direct parse, then the first bracketed array after stripping code fences,
// then gives up with fallback records. It never fails.
func SafeParse(content string, clauses []string, startID int) []BatchRecord {
	if recs, ok := decodeRecords(content); ok {
		return align(recs, clauses, startID)
	}
	stripped := stripFences(content)
	for _, candidate := range []string{firstArray(stripped), arrayPattern.FindString(stripped)} {
		if candidate == "" {
			continue
		}
		if recs, ok := decodeRecords(candidate); ok {
			return align(recs, clauses, startID)
		}
	}
	telemetry.Warn("analysis.batch.parse_failed", map[string]any{
		"start_id": startID,
		"preview":  preview(content, 120),
	})
	metrics.AddBatchFallbacks(len(clauses))
	return fallbackRecords(clauses, startID, ParseFailureNote)
}

// ValidateRecords keeps, by position, the records that carry every field and
// replaces the rest with validation fallbacks. Kept records take the id of
// their position.
func ValidateRecords(records []BatchRecord, startID int, clauses []string) []BatchRecord {
	out := make([]BatchRecord, len(clauses))
	bad := 0
	for i, cl := range clauses {
		if i < len(records) && records[i].complete() {
			out[i] = records[i]
			out[i].ClauseID = startID + i
			continue
		}
		out[i] = fallbackRecord(startID+i, cl, ValidationFailureNote)
		bad++
	}
	if bad > 0 {
		metrics.AddBatchFallbacks(bad)
		telemetry.Warn("analysis.batch.validation_failed", map[string]any{"start_id": startID, "records": bad})
	}
	return out
}

func fallbackRecord(id int, clause, note string) BatchRecord {
	return BatchRecord{ClauseID: id, Clause: clause, Regulation: Unknown, RiskLevel: Unknown, Analysis: note}
}

func fallbackRecords(clauses []string, startID int, note string) []BatchRecord {
	out := make([]BatchRecord, len(clauses))
	for i, cl := range clauses {
		out[i] = fallbackRecord(startID+i, cl, note)
	}
	return out
}

// align pads or truncates to one record per clause. Missing positions get
// parse fallbacks.
func align(recs []BatchRecord, clauses []string, startID int) []BatchRecord {
	out := make([]BatchRecord, len(clauses))
	for i, cl := range clauses {
		if i < len(recs) {
			out[i] = recs[i]
			continue
		}
		out[i] = fallbackRecord(startID+i, cl, ParseFailureNote)
	}
	return out
}

func decodeRecords(raw string) ([]BatchRecord, bool) {
	var items []map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &items); err != nil {
		return nil, false
	}
	out := make([]BatchRecord, 0, len(items))
	for _, item := range items {
		out = append(out, BatchRecord{
			ClauseID:   intField(item["Clause ID"]),
			Clause:     stringField(item["Contract Clause"]),
			Regulation: stringField(item["Regulation"]),
			RiskLevel:  stringField(item["Risk Level"]),
			Analysis:   stringField(item["AI Analysis"]),
		})
	}
	return out, true
}

func intField(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err == nil {
			return n
		}
	}
	return 0
}

func stringField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func stripFences(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// firstArray returns the first balanced [...] span, skipping brackets inside
// JSON strings.
func firstArray(s string) string {
	start := strings.IndexByte(s, '[')
	for start >= 0 {
		depth, inString, escaped := 0, false, false
		for i := start; i < len(s); i++ {
			c := s[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '[':
				depth++
			case c == ']':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate
					}
					i = len(s)
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '[')
		if next < 0 {
			return ""
		}
		start += next + 1
	}
	return ""
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
