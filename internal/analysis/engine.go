package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"compliance-backend/internal/llm"
	"compliance-backend/internal/shared/metrics"
	"compliance-backend/internal/shared/telemetry"
)

// ErrAllProvidersFailed means every provider in the order returned an error
// for one call. It is joined with the per-provider causes.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Defaults for the batch path.
const (
	DefaultBatchRetries = 3
	DefaultBatchBackoff = 2 * time.Second
)

// Engine prompts providers for clause analyses. It holds no per-run state and
// is safe for concurrent use.
type Engine struct {
	// BatchProviders is the rotation used by AnalyzeBatch.
	BatchProviders []llm.Provider
	BatchRetries   int
	BatchBackoff   time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine builds an engine with the default batch retry policy.
func NewEngine(batchProviders []llm.Provider) *Engine {
	return &Engine{
		BatchProviders: batchProviders,
		BatchRetries:   DefaultBatchRetries,
		BatchBackoff:   DefaultBatchBackoff,
		sleep:          sleepCtx,
	}
}

// Analyze asks each provider in order for the labelled analysis and returns
// the first parsed answer.
func (e *Engine) Analyze(ctx context.Context, clause string, providers []llm.Provider) (*Result, error) {
	content, p, err := e.firstAnswer(ctx, "analyze", providers, llm.CompletionRequest{
		Prompt:    clausePrompt(clause),
		MaxTokens: clauseMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	res := ParseClauseResponse(content)
	res.Clause = clause
	res.Provider = p.Name()
	res.Model = p.Model()
	validateRewrite(&res)
	if res.Violation() {
		metrics.IncRewriteViolation()
		telemetry.Warn("analysis.rewrite.violation", map[string]any{
			"provider":            p.Name(),
			"risk_level":          res.RiskLevel,
			"modified_risk_level": res.ModifiedRiskLevel,
		})
	}
	return &res, nil
}

// ExtractKeyPhrases returns the comma-separated key phrases of a clause.
func (e *Engine) ExtractKeyPhrases(ctx context.Context, clause string, providers []llm.Provider) (string, error) {
	content, _, err := e.firstAnswer(ctx, "key_phrases", providers, llm.CompletionRequest{
		Prompt:    keyPhrasePrompt(clause),
		MaxTokens: keyPhraseMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// AnalyzeClause runs the analysis and then key-phrase extraction. The provider
// that answered the analysis is tried first for the phrases. A key-phrase
// failure leaves the N/A sentinel and never fails the clause.
func (e *Engine) AnalyzeClause(ctx context.Context, clause string, providers []llm.Provider) (*Result, error) {
	res, err := e.Analyze(ctx, clause, providers)
	if err != nil {
		return nil, err
	}
	phrases, err := e.ExtractKeyPhrases(ctx, clause, preferFirst(providers, res.Provider))
	switch {
	case err == nil && phrases != "":
		res.KeyPhrases = phrases
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		res.KeyPhrases = NotAvailable
	}
	return res, nil
}

// ModifyClause asks for a compliant rewrite. Low risk clauses come back as is.
func (e *Engine) ModifyClause(ctx context.Context, clause, riskLevel string, providers []llm.Provider) (string, error) {
	if strings.EqualFold(strings.TrimSpace(riskLevel), RiskLow) {
		return clause, nil
	}
	content, _, err := e.firstAnswer(ctx, "modify", providers, llm.CompletionRequest{
		Prompt:    rewritePrompt(clause, riskLevel),
		MaxTokens: rewriteMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// firstAnswer walks providers in order without retrying any of them.
func (e *Engine) firstAnswer(ctx context.Context, op string, providers []llm.Provider, req llm.CompletionRequest) (string, llm.Provider, error) {
	if len(providers) == 0 {
		return "", nil, fmt.Errorf("%w: no providers", ErrAllProvidersFailed)
	}
	var errs []error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		content, err := p.Complete(ctx, req)
		if err == nil && strings.TrimSpace(content) != "" {
			return content, p, nil
		}
		if err == nil {
			err = &llm.ProviderError{Provider: p.Name(), Kind: llm.ErrProvider, Err: errors.New("empty response")}
		}
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		metrics.IncProviderFailure(p.Name())
		telemetry.Warn("analysis.provider.failed", map[string]any{
			"op":       op,
			"provider": p.Name(),
			"model":    p.Model(),
			"kind":     llm.KindOf(err).Error(),
			"error":    err.Error(),
		})
		errs = append(errs, fmt.Errorf("%s/%s: %w", p.Name(), p.Model(), err))
	}
	return "", nil, errors.Join(append([]error{ErrAllProvidersFailed}, errs...)...)
}

func preferFirst(providers []llm.Provider, name string) []llm.Provider {
	out := make([]llm.Provider, 0, len(providers))
	for _, p := range providers {
		if p.Name() == name {
			out = append(out, p)
		}
	}
	for _, p := range providers {
		if p.Name() != name {
			out = append(out, p)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
