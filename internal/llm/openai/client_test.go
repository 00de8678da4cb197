package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"compliance-backend/internal/llm"
)

func TestIsGPT5(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "gpt4", model: "gpt-4o", want: false},
		{name: "llama", model: "llama-3.3-70b-versatile", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isGPT5(tt.model); got != tt.want {
				t.Fatalf("isGPT5(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestChatCompletionSendsModelAndTokens(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"payment, invoice"}}]}`))
	}))
	defer server.Close()

	c := NewClient("groq", server.URL, "key", time.Second)
	out, err := c.ChatCompletion(context.Background(), "llama-3.3-70b-versatile", llm.CompletionRequest{Prompt: "p", MaxTokens: 100, Temperature: llm.Temperature(0)})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out != "payment, invoice" {
		t.Fatalf("unexpected output %q", out)
	}
	if payload["model"] != "llama-3.3-70b-versatile" || payload["max_tokens"] != float64(100) {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["temperature"]; !ok {
		t.Fatalf("expected temperature in payload")
	}
}

func TestChatCompletionOmitsTemperatureForGPT5(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[]"}}]}`))
	}))
	defer server.Close()

	c := NewClient("openai", server.URL, "key", time.Second)
	if _, err := c.ChatCompletion(context.Background(), "gpt-5-mini", llm.CompletionRequest{Prompt: "p", Temperature: llm.Temperature(0)}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if _, ok := payload["temperature"]; ok {
		t.Fatalf("expected temperature to be omitted")
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"llama3-70b-8192"},{"id":"gemma-7b-it"}]}`))
	}))
	defer server.Close()

	ids, err := NewClient("groq", server.URL, "key", time.Second).ListModels(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[1] != "gemma-7b-it" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestListModelsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := &llm.DirectAPI{ProviderName: "groq", ModelID: "m", Client: NewClient("groq", server.URL, "bad", time.Second)}
	if err := p.Check(context.Background()); !errors.Is(err, llm.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestMissingKeyFailsWithoutCalling(t *testing.T) {
	c := NewGroq("", time.Second)
	if _, err := c.ListModels(context.Background()); !errors.Is(err, llm.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}
