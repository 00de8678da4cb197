// Package orchestrator fans clauses out to the analysis engine on a bounded
// pool and commits the ordered results to the result store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/chunker"
	"compliance-backend/internal/llm"
	"compliance-backend/internal/resultstore"
	"compliance-backend/internal/shared/metrics"
	"compliance-backend/internal/shared/telemetry"
)

// Defaults.
const (
	DefaultWorkers   = 5
	DefaultBatchSize = 5
)

// ProviderSource yields the providers that pass their checks, in order.
type ProviderSource interface {
	Available(ctx context.Context) ([]llm.Provider, error)
}

// Analyzer is the part of the analysis engine a run needs.
type Analyzer interface {
	AnalyzeClause(ctx context.Context, clause string, providers []llm.Provider) (*analysis.Result, error)
	AnalyzeBatch(ctx context.Context, clauses []string, startID int) ([]analysis.BatchRecord, error)
}

// Orchestrator runs one analysis pass over a chunked contract.
type Orchestrator struct {
	Providers ProviderSource
	Engine    Analyzer
	Store     resultstore.Store
	Workers   int
	BatchSize int
	Mode      resultstore.WriteMode
}

// TaskResult is the outcome of one clause task: a result or the reason it
// failed.
type TaskResult struct {
	ClauseID int
	Result   *analysis.Result
	Err      error
}

// TaskFailure records a dropped clause.
type TaskFailure struct {
	ClauseID int    `json:"clauseId"`
	Reason   string `json:"reason"`
}

// Outcome is what a run committed.
type Outcome struct {
	Results []analysis.Result
	Records []analysis.BatchRecord
	Dropped []TaskFailure
	StartID int
	Mode    resultstore.WriteMode
	Schema  resultstore.Schema
}

// Rebase assigns ids start, start+1, ... in input order.
func Rebase(clauses []chunker.Clause, start int) []chunker.Clause {
	out := make([]chunker.Clause, len(clauses))
	for i, c := range clauses {
		c.ID = start + i
		out[i] = c
	}
	return out
}

// Run analyzes every clause with the per-clause pipeline. Only registry-wide
// unavailability, a store failure or cancellation is returned as an error;
// clauses whose providers all failed are dropped and reported in the outcome.
// The store is written once, after every task has finished.
func (o *Orchestrator) Run(ctx context.Context, clauses []chunker.Clause) (Outcome, error) {
	providers, err := o.Providers.Available(ctx)
	if err != nil {
		return Outcome{}, err
	}
	start, err := o.Store.NextID(ctx)
	if err != nil {
		return Outcome{}, err
	}
	clauses = Rebase(clauses, start)

	tasks := make([]TaskResult, len(clauses))
	var g errgroup.Group
	g.SetLimit(o.workers())
	for i, cl := range clauses {
		g.Go(func() error {
			tasks[i] = o.analyzeOne(ctx, cl, providers)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	results, dropped := Collect(tasks)
	metrics.AddClausesAnalyzed(len(results))
	metrics.AddClausesDropped(len(dropped))

	rows := make([]resultstore.Row, len(results))
	for i, r := range results {
		rows[i] = r.Row()
	}
	mode := o.mode()
	if err := o.Store.Write(ctx, resultstore.ClauseSchema, rows, mode); err != nil {
		return Outcome{}, fmt.Errorf("commit results: %w", err)
	}
	telemetry.Info("orchestrator.run.committed", map[string]any{
		"start_id": start,
		"analyzed": len(results),
		"dropped":  len(dropped),
		"mode":     string(mode),
	})
	return Outcome{Results: results, Dropped: dropped, StartID: start, Mode: mode, Schema: resultstore.ClauseSchema}, nil
}

func (o *Orchestrator) analyzeOne(ctx context.Context, cl chunker.Clause, providers []llm.Provider) (out TaskResult) {
	out.ClauseID = cl.ID
	defer func() {
		if r := recover(); r != nil {
			out = TaskResult{ClauseID: cl.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	res, err := o.Engine.AnalyzeClause(ctx, cl.Text, providers)
	if err != nil {
		out.Err = err
		return out
	}
	res.ClauseID = cl.ID
	out.Result = res
	return out
}

// Collect drops failed tasks, logging each, and returns the rest sorted by
// clause id with duplicates removed.
func Collect(tasks []TaskResult) ([]analysis.Result, []TaskFailure) {
	byID := make(map[int]analysis.Result, len(tasks))
	var dropped []TaskFailure
	for _, t := range tasks {
		if t.Err != nil || t.Result == nil {
			reason := "no result"
			if t.Err != nil {
				reason = t.Err.Error()
			}
			if !errors.Is(t.Err, context.Canceled) {
				telemetry.Warn("orchestrator.clause.dropped", map[string]any{
					"clause_id": t.ClauseID,
					"reason":    reason,
				})
			}
			dropped = append(dropped, TaskFailure{ClauseID: t.ClauseID, Reason: reason})
			continue
		}
		byID[t.ClauseID] = *t.Result
	}
	results := make([]analysis.Result, 0, len(byID))
	for _, r := range byID {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ClauseID < results[j].ClauseID })
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].ClauseID < dropped[j].ClauseID })
	return results, dropped
}

func (o *Orchestrator) workers() int {
	if o.Workers <= 0 {
		return DefaultWorkers
	}
	return o.Workers
}

func (o *Orchestrator) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

func (o *Orchestrator) mode() resultstore.WriteMode {
	if o.Mode == "" {
		return resultstore.WriteAppend
	}
	return o.Mode
}

// WithMode returns a copy writing with the given mode.
func (o *Orchestrator) WithMode(mode resultstore.WriteMode) *Orchestrator {
	cp := *o
	cp.Mode = mode
	return &cp
}
