package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoindex/internal/config"
)

func TestDeterministicIsStableForSameText(t *testing.T) {
	e := NewDeterministic(16, true, 42)
	a, err := e.EmbedBatch(context.Background(), []string{"hello"})
	require.NoError(t, err)
	b, err := e.EmbedBatch(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeterministicDiffersForDifferentText(t *testing.T) {
	e := NewDeterministic(16, false, 0)
	a, err := e.EmbedBatch(context.Background(), []string{"hello"})
	require.NoError(t, err)
	b, err := e.EmbedBatch(context.Background(), []string{"goodbye"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHTTPClientWrapsEmbedderError(t *testing.T) {
	e := NewHTTPClient(config.EmbedderConfig{ModelName: "test"}, 4, func(ctx context.Context, model string, texts []string) ([][]float32, error) {
		return nil, assertErr{}
	})
	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
