package llm

import (
	"context"
	"errors"
	"fmt"

	"compliance-backend/internal/shared/telemetry"
)

// Registry holds providers in preference order. It is read-only after
// construction.
type Registry struct {
	providers []Provider
}

// NewRegistry keeps the given order.
func NewRegistry(providers ...Provider) *Registry {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &Registry{providers: out}
}

// Providers returns a copy of the preference order.
func (r *Registry) Providers() []Provider {
	return append([]Provider(nil), r.providers...)
}

// Lookup finds a provider by name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Select returns the first provider whose check passes, or
// ErrNoProviderAvailable joined with every check failure.
func (r *Registry) Select(ctx context.Context) (Provider, error) {
	var errs []error
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.Check(ctx); err != nil {
			logCheckFailure(p, err)
			errs = append(errs, fmt.Errorf("%s/%s: %w", p.Name(), p.Model(), err))
			continue
		}
		telemetry.Info("llm.provider.selected", map[string]any{"provider": p.Name(), "model": p.Model()})
		return p, nil
	}
	return nil, noProvider(errs)
}

// Available returns every provider whose check passes, in preference order.
func (r *Registry) Available(ctx context.Context) ([]Provider, error) {
	var (
		ok   []Provider
		errs []error
	)
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.Check(ctx); err != nil {
			logCheckFailure(p, err)
			errs = append(errs, fmt.Errorf("%s/%s: %w", p.Name(), p.Model(), err))
			continue
		}
		ok = append(ok, p)
	}
	if len(ok) == 0 {
		return nil, noProvider(errs)
	}
	return ok, nil
}

func noProvider(errs []error) error {
	return errors.Join(append([]error{ErrNoProviderAvailable}, errs...)...)
}

func logCheckFailure(p Provider, err error) {
	telemetry.Warn("llm.provider.check_failed", map[string]any{
		"provider": p.Name(),
		"model":    p.Model(),
		"kind":     string(p.Kind()),
		"error":    err.Error(),
	})
}
