package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoGeneratorReturnsPromptDerivedText(t *testing.T) {
	g := Echo{}
	out, err := g.Generate(context.Background(), "what is the capital of France?", Options{})
	require.NoError(t, err)
	assert.Contains(t, out, "what is the capital of France?")
}

func TestMergeDefaultsFillsZeroFields(t *testing.T) {
	defaults := Options{Temperature: 0.5, MaxTokens: 512, TopP: 0.9}
	merged := mergeDefaults(Options{}, defaults)
	assert.Equal(t, defaults, merged)
}

func TestMergeDefaultsKeepsExplicitOverrides(t *testing.T) {
	defaults := Options{Temperature: 0.5, MaxTokens: 512, TopP: 0.9}
	merged := mergeDefaults(Options{Temperature: 0.1}, defaults)
	assert.Equal(t, 0.1, merged.Temperature)
	assert.Equal(t, 512, merged.MaxTokens)
}
