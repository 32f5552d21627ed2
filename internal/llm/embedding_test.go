package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f embedFunc) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

func TestEmbedFlattensRows(t *testing.T) {
	e := NewEmbedder(embedFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		require.Equal(t, []string{"orders table"}, texts)
		return [][]float32{{1, 2}, {3}}, nil
	}))
	v, err := e.Embed(context.Background(), "orders table")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v.Slice())
}

func TestEmbedErrors(t *testing.T) {
	e := NewEmbedder(embedFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("model not loaded")
	}))
	_, err := e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "model not loaded")

	_, err = e.Embed(context.Background(), "")
	assert.Error(t, err)
}

func TestEmbedBatch(t *testing.T) {
	e := NewEmbedder(embedFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i)}
		}
		return out, nil
	}))
	vs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, []float32{1}, vs[1].Slice())

	short := NewEmbedder(embedFunc(func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}))
	_, err = short.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}
