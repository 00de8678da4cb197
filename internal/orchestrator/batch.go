package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/chunker"
	"compliance-backend/internal/resultstore"
	"compliance-backend/internal/shared/telemetry"
)

// RunBatch is the legacy flow: clauses go to the model BatchSize at a time as
// one JSON prompt and are stored in the batch schema. Parse and call failures
// become fallback records, so no clause is dropped.
func (o *Orchestrator) RunBatch(ctx context.Context, clauses []chunker.Clause) (Outcome, error) {
	if _, err := o.Providers.Available(ctx); err != nil {
		return Outcome{}, err
	}
	start, err := o.Store.NextID(ctx)
	if err != nil {
		return Outcome{}, err
	}
	clauses = Rebase(clauses, start)

	size := o.batchSize()
	batches := make([][]analysis.BatchRecord, (len(clauses)+size-1)/size)
	var g errgroup.Group
	g.SetLimit(o.workers())
	for b := range batches {
		lo := b * size
		hi := min(lo+size, len(clauses))
		texts := make([]string, 0, hi-lo)
		for _, c := range clauses[lo:hi] {
			texts = append(texts, c.Text)
		}
		firstID := clauses[lo].ID
		g.Go(func() error {
			recs, err := o.Engine.AnalyzeBatch(ctx, texts, firstID)
			if err != nil {
				return err
			}
			batches[b] = analysis.ValidateRecords(recs, firstID, texts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	var records []analysis.BatchRecord
	for _, recs := range batches {
		records = append(records, recs...)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ClauseID < records[j].ClauseID })
	rows := make([]resultstore.Row, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}

	mode := o.mode()
	if err := o.Store.Write(ctx, resultstore.BatchSchema, rows, mode); err != nil {
		return Outcome{}, fmt.Errorf("commit batch records: %w", err)
	}
	telemetry.Info("orchestrator.batch.committed", map[string]any{
		"start_id": start,
		"records":  len(records),
		"batches":  len(batches),
		"mode":     string(mode),
	})
	return Outcome{Records: records, StartID: start, Mode: mode, Schema: resultstore.BatchSchema}, nil
}
