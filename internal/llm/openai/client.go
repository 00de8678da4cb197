package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"compliance-backend/internal/llm"
	"compliance-backend/internal/shared/telemetry"
)

// Base URLs of OpenAI-compatible chat APIs.
const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// Client is a direct-API handle for OpenAI-compatible chat completion
// services such as OpenAI and Groq.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client. A missing key is reported by calls, not here,
// so the registry can skip the provider.
func NewClient(name, baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewGroq returns a client for the Groq API.
func NewGroq(apiKey string, timeout time.Duration) *Client {
	return NewClient("groq", GroqBaseURL, apiKey, timeout)
}

// ChatCompletion implements llm.APIClient.
func (c *Client) ChatCompletion(ctx context.Context, model string, req llm.CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", c.missingKey()
	}
	if isGPT5(model) {
		req.Temperature = nil
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	start := time.Now()
	out, err := llm.PostChat(ctx, c.httpClient, c.baseURL+"/chat/completions", headers, model, req)
	if err != nil {
		return "", err
	}
	telemetry.Debug("llm.response", map[string]any{
		"provider":    c.name,
		"model":       model,
		"max_tokens":  req.MaxTokens,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return out, nil
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels implements llm.APIClient and doubles as the connectivity check.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	if c.apiKey == "" {
		return nil, c.missingKey()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &llm.StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var parsed modelList
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%s models parse: %w", c.name, err)
	}
	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) missingKey() error {
	return &llm.ProviderError{Provider: c.name, Kind: llm.ErrAuth, Err: fmt.Errorf("api key not set")}
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ llm.APIClient = (*Client)(nil)
