package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbeddingModel is implemented by langchaingo models that embed text.
type EmbeddingModel interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// Embedder turns text into pgvector values.
type Embedder struct {
	model EmbeddingModel
}

func NewEmbedder(model EmbeddingModel) *Embedder {
	return &Embedder{model: model}
}

// NewOllamaEmbedder embeds with an Ollama embedding model.
func NewOllamaEmbedder(serverURL, model string) (*Embedder, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	m, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama model: %w", err)
	}
	return &Embedder{model: m}, nil
}

// Embed returns the embedding of content. Multi-row responses are
// flattened into a single vector.
func (e *Embedder) Embed(ctx context.Context, content string) (pgvector.Vector, error) {
	if content == "" {
		return pgvector.Vector{}, errors.New("cannot embed empty content")
	}
	twoDimensionalEmbedding, err := e.model.CreateEmbedding(ctx, []string{content})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(twoDimensionalEmbedding) == 0 {
		return pgvector.Vector{}, errors.New("failed to create embedding: empty response")
	}

	oneDimensionalEmbedding := make([]float32, 0, len(twoDimensionalEmbedding)*len(twoDimensionalEmbedding[0]))
	for _, row := range twoDimensionalEmbedding {
		oneDimensionalEmbedding = append(oneDimensionalEmbedding, row...)
	}
	return pgvector.NewVector(oneDimensionalEmbedding), nil
}

// EmbedBatch embeds each text in one call. The result is index-aligned with
// texts.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	rows, err := e.model.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(rows) != len(texts) {
		return nil, fmt.Errorf("failed to create embeddings: got %d vectors for %d texts", len(rows), len(texts))
	}
	out := make([]pgvector.Vector, len(rows))
	for i, row := range rows {
		out[i] = pgvector.NewVector(row)
	}
	return out, nil
}
