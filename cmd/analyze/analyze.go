package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/chunker"
	"compliance-backend/internal/extract"
	"compliance-backend/internal/orchestrator"
	"compliance-backend/internal/report"
	"compliance-backend/internal/resultstore"
	"compliance-backend/internal/runs"
	"compliance-backend/internal/shared/config"
)

func parseFlags(args []string, cfg config.Config) (options, error) {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a contract (pdf or docx)")
	watchDir := fs.String("watch", cfg.InboxDir, "Inbox directory to watch instead of -file")
	reportDir := fs.String("report", "", "Directory to write the rewritten-clauses DOCX report (optional)")
	mode := fs.String("mode", cfg.ChunkMode, "Chunking mode: semantic or fixed")
	pipe := fs.String("pipeline", cfg.Pipeline, "Analysis pipeline: clause or batch")
	write := fs.String("write", cfg.WriteMode, "Result store write mode: append or replace")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		file:      strings.TrimSpace(*file),
		watchDir:  strings.TrimSpace(*watchDir),
		reportDir: strings.TrimSpace(*reportDir),
		pipeline:  normalize(*pipe),
	}
	watchSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "watch" {
			watchSet = true
		}
	})
	// INBOX_DIR only supplies a default when no file is named.
	if opts.file != "" && !watchSet {
		opts.watchDir = ""
	}
	if (opts.file == "") == (opts.watchDir == "") {
		return options{}, errors.New("exactly one of -file or -watch is required")
	}
	m := normalize(*mode)
	if !validChoice(m, string(chunker.ModeSemantic), string(chunker.ModeFixed)) {
		return options{}, fmt.Errorf("invalid -mode %q: must be semantic or fixed", *mode)
	}
	opts.mode = chunker.Mode(m)
	if opts.pipeline == "" {
		opts.pipeline = runs.PipelineClause
	}
	if !validChoice(opts.pipeline, runs.PipelineClause, runs.PipelineBatch) {
		return options{}, fmt.Errorf("invalid -pipeline %q: must be clause or batch", *pipe)
	}
	w := normalize(*write)
	if w == "" {
		w = string(resultstore.WriteAppend)
	}
	if !validChoice(w, string(resultstore.WriteAppend), string(resultstore.WriteReplace)) {
		return options{}, fmt.Errorf("invalid -write %q: must be append or replace", *write)
	}
	opts.write = resultstore.WriteMode(w)
	return opts, nil
}

// pipeline is the chunk, analyze and commit path shared by -file and -watch.
type pipeline struct {
	chunker  *chunker.Chunker
	orch     *orchestrator.Orchestrator
	rewriter runs.Rewriter
	now      func() time.Time
}

func (p pipeline) analyzeFile(ctx context.Context, path string, opts options, out io.Writer) error {
	text, err := extract.ExtractFile(ctx, path)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	chunked, err := p.chunker.Chunk(ctx, text, opts.mode)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", path, err)
	}
	if len(chunked.Clauses) == 0 {
		return fmt.Errorf("%s: no analyzable text", path)
	}

	orch := p.orch.WithMode(opts.write)
	var outcome orchestrator.Outcome
	if opts.pipeline == runs.PipelineBatch {
		outcome, err = orch.RunBatch(ctx, chunked.Clauses)
	} else {
		outcome, err = orch.Run(ctx, chunked.Clauses)
	}
	if err != nil {
		return fmt.Errorf("analyze %s: %w", path, err)
	}

	rows := make([]resultstore.Row, 0, len(outcome.Results)+len(outcome.Records))
	for _, r := range outcome.Results {
		rows = append(rows, r.Row())
	}
	for _, r := range outcome.Records {
		rows = append(rows, r.Row())
	}

	fmt.Fprintf(out, "%s: %d clauses, %d analyzed, %d dropped, chunking %s", filepath.Base(path),
		len(chunked.Clauses), len(rows), len(outcome.Dropped), chunked.Mode)
	if chunked.Degraded {
		fmt.Fprintf(out, " (degraded: %s)", chunked.Reason)
	}
	fmt.Fprintln(out)
	printRows(out, outcome.Schema, rows)
	for _, d := range outcome.Dropped {
		fmt.Fprintf(out, "dropped clause %d: %s\n", d.ClauseID, d.Reason)
	}

	summary := runs.Summarize(outcome.Schema, rows)
	if summary.Score != nil {
		fmt.Fprintf(out, "compliance score: %.2f\n%s\n", *summary.Score, summary.Verdict)
	}
	for _, r := range summary.Recommendations {
		fmt.Fprintf(out, "- %s\n", r)
	}

	if opts.reportDir == "" {
		return nil
	}
	dest, err := p.writeReport(ctx, path, opts.reportDir, outcome)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "report: %s\n", dest)
	return nil
}

func printRows(out io.Writer, schema resultstore.Schema, rows []resultstore.Row) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(schema.Header, "\t"))
	for _, row := range rows {
		values := row.Values()
		for i, v := range values {
			values[i] = truncate(strings.Join(strings.Fields(v), " "), 60)
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func (p pipeline) writeReport(ctx context.Context, path, dir string, outcome orchestrator.Outcome) (string, error) {
	entries := make([]report.Entry, 0, len(outcome.Results)+len(outcome.Records))
	for _, r := range outcome.Results {
		mod := r.ModifiedClause
		if mod == analysis.NoModification {
			mod = ""
		}
		entries = append(entries, report.Entry{ClauseID: r.ClauseID, RiskLevel: r.RiskLevel, Clause: r.Clause, ModifiedClause: mod})
	}
	for _, r := range outcome.Records {
		entry := report.Entry{ClauseID: r.ClauseID, RiskLevel: r.RiskLevel, Clause: r.Clause}
		if p.rewriter != nil {
			if providers, err := p.orch.Providers.Available(ctx); err == nil {
				if mod, err := p.rewriter.ModifyClause(ctx, r.Clause, r.RiskLevel, providers); err == nil {
					entry.ModifiedClause = mod
				}
			}
		}
		entries = append(entries, entry)
	}

	now := time.Now
	if p.now != nil {
		now = p.now
	}
	data, err := report.RenderDOCX(report.Meta{ContractName: filepath.Base(path), GeneratedAt: now()}, entries)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dest := filepath.Join(dir, base+".report.docx")
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return dest, nil
}
