package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

// GeminiAdapter embeds text with the Gemini embedding API.
type GeminiAdapter struct {
	model *genai.EmbeddingModel
}

// NewGeminiAdapter wraps an existing genai client.
func NewGeminiAdapter(client *genai.Client, model string) *GeminiAdapter {
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	return &GeminiAdapter{model: client.EmbeddingModel(model)}
}

// Embed generates an embedding for a single text.
func (a *GeminiAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := a.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds texts in a single batch request.
func (a *GeminiAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := a.model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := a.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini batch embed: got %d vectors for %d texts", len(res.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("embedding text %d: %w", i, ErrEmptyEmbedding)
		}
		out[i] = e.Values
	}
	return out, nil
}
