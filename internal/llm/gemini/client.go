// Package gemini adapts the Gemini SDK to the direct-API provider contract.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"compliance-backend/internal/llm"
)

// Client wraps a genai client. A nil inner client fails every call with an
// auth error.
type Client struct {
	inner *genai.Client
}

// New dials Gemini with an API key. An empty key yields a Client whose calls
// fail, so the provider is skipped by the registry.
func New(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return &Client{}, nil
	}
	inner, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{inner: inner}, nil
}

// Genai exposes the underlying SDK client for embedding use.
func (c *Client) Genai() *genai.Client {
	return c.inner
}

// Close releases the SDK client.
func (c *Client) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// ChatCompletion implements llm.APIClient.
func (c *Client) ChatCompletion(ctx context.Context, model string, req llm.CompletionRequest) (string, error) {
	if c.inner == nil {
		return "", errNoKey
	}
	m := c.inner.GenerativeModel(model)
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature != nil {
		m.SetTemperature(*req.Temperature)
	}
	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", mapError(err)
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("gemini response empty content")
	}
	return out, nil
}

// ListModels implements llm.APIClient.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	if c.inner == nil {
		return nil, errNoKey
	}
	var names []string
	it := c.inner.ListModels(ctx)
	for {
		info, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError(err)
		}
		names = append(names, info.Name)
	}
	return names, nil
}

var errNoKey = &llm.ProviderError{Provider: "gemini", Kind: llm.ErrAuth, Err: errors.New("GEMINI_API_KEY not set")}

func mapError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &llm.StatusError{Status: gErr.Code, Body: gErr.Message}
	}
	return err
}

var _ llm.APIClient = (*Client)(nil)
