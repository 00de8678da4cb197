package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaAdapter_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "test-model" || body.Prompt != "hello" {
			t.Errorf("unexpected request: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test-model")
	emb, err := adapter.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(emb) != 3 {
		t.Errorf("expected 3 dims, got %d", len(emb))
	}
}

func TestOllamaAdapter_EmbedAllUsesBatch(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{float32(calls)}})
	}))
	defer server.Close()

	out, err := EmbedAll(context.Background(), NewOllamaAdapter(server.URL, "m"), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed all: %v", err)
	}
	if len(out) != 3 || out[2][0] != 3 {
		t.Fatalf("unexpected vectors: %v", out)
	}
}

func TestOllamaAdapter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := NewOllamaAdapter(server.URL, "test").Embed(context.Background(), "test"); err == nil {
		t.Error("should error on 500")
	}
}

func TestOllamaAdapter_EmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer server.Close()

	if _, err := NewOllamaAdapter(server.URL, "test").Embed(context.Background(), "x"); err != ErrEmptyEmbedding {
		t.Fatalf("expected ErrEmptyEmbedding, got %v", err)
	}
}

func TestOllamaAdapter_DefaultValues(t *testing.T) {
	adapter := NewOllamaAdapter("", "")
	if adapter.baseURL != "http://localhost:11434" {
		t.Error("should default to localhost")
	}
	if adapter.model != "nomic-embed-text" {
		t.Error("should default to nomic-embed-text")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: %v", got)
	}
	if got := CosineSimilarity([]float32{1}, []float32{1, 2}); got != 0 {
		t.Fatalf("mismatched lengths: %v", got)
	}
}
