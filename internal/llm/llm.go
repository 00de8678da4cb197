// Package llm models the language-model providers a run can call and the
// registry that orders them.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind distinguishes the two provider variants.
type Kind string

const (
	KindDirectAPI     Kind = "direct_api"
	KindHTTPInference Kind = "http_inference"
)

// DefaultTimeout bounds a single provider call when none is configured.
const DefaultTimeout = 60 * time.Second

// CompletionRequest is one single-turn prompt.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature *float32
}

// Temperature returns a pointer for CompletionRequest.Temperature.
func Temperature(v float32) *float32 {
	return &v
}

// Provider is a configured model backend. The set of implementations is
// closed: DirectAPI and HTTPInference.
type Provider interface {
	Name() string
	Model() string
	Kind() Kind
	// Complete returns the model's text answer.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Check is the cheap connectivity or credential probe used by the registry.
	Check(ctx context.Context) error
	sealed()
}

// APIClient is an SDK-style handle for a direct-API provider.
type APIClient interface {
	ChatCompletion(ctx context.Context, model string, req CompletionRequest) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// DirectAPI calls a provider through its API client.
type DirectAPI struct {
	ProviderName string
	ModelID      string
	Client       APIClient
	Timeout      time.Duration
}

func (p *DirectAPI) Name() string  { return p.ProviderName }
func (p *DirectAPI) Model() string { return p.ModelID }
func (p *DirectAPI) Kind() Kind    { return KindDirectAPI }
func (p *DirectAPI) sealed()       {}

// Complete issues one chat completion under the per-call timeout.
func (p *DirectAPI) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if p.Client == nil {
		return "", &ProviderError{Provider: p.ProviderName, Kind: ErrAuth, Err: fmt.Errorf("client not configured")}
	}
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(p.Timeout))
	defer cancel()
	out, err := p.Client.ChatCompletion(ctx, p.ModelID, req)
	if err != nil {
		return "", wrapProviderError(p.ProviderName, err)
	}
	return out, nil
}

// Check lists the provider's models.
func (p *DirectAPI) Check(ctx context.Context) error {
	if p.Client == nil {
		return &ProviderError{Provider: p.ProviderName, Kind: ErrAuth, Err: fmt.Errorf("client not configured")}
	}
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(p.Timeout))
	defer cancel()
	if _, err := p.Client.ListModels(ctx); err != nil {
		return wrapProviderError(p.ProviderName, err)
	}
	return nil
}

// HTTPInference posts chat completions to a bearer-authenticated endpoint.
type HTTPInference struct {
	ProviderName string
	ModelID      string
	Endpoint     string
	Token        string
	Headers      map[string]string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

func (p *HTTPInference) Name() string  { return p.ProviderName }
func (p *HTTPInference) Model() string { return p.ModelID }
func (p *HTTPInference) Kind() Kind    { return KindHTTPInference }
func (p *HTTPInference) sealed()       {}

// Complete posts one chat completion under the per-call timeout.
func (p *HTTPInference) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := p.Check(ctx); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(p.Timeout))
	defer cancel()

	headers := map[string]string{"Authorization": "Bearer " + p.Token}
	for k, v := range p.Headers {
		headers[k] = v
	}
	hc := p.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	out, err := PostChat(ctx, hc, p.Endpoint, headers, p.ModelID, req)
	if err != nil {
		return "", wrapProviderError(p.ProviderName, err)
	}
	return out, nil
}

// Check only verifies that a credential and endpoint are present.
func (p *HTTPInference) Check(context.Context) error {
	if strings.TrimSpace(p.Token) == "" {
		return &ProviderError{Provider: p.ProviderName, Kind: ErrAuth, Err: fmt.Errorf("token not set")}
	}
	if strings.TrimSpace(p.Endpoint) == "" {
		return &ProviderError{Provider: p.ProviderName, Kind: ErrProvider, Err: fmt.Errorf("endpoint not set")}
	}
	return nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

var (
	_ Provider = (*DirectAPI)(nil)
	_ Provider = (*HTTPInference)(nil)
)
