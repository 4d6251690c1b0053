package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.VectorStores.Chroma.CollectionName)
	assert.Equal(t, 1.5, cfg.VectorStores.Chroma.BM25K1)
	assert.Equal(t, 0.75, cfg.VectorStores.Chroma.BM25B)
	assert.Equal(t, "sqlite", cfg.StateManager.Driver)
	assert.Equal(t, 100, cfg.Pipelines.Default.BatchSize)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
vector_stores:
  chroma:
    persist_directory: /tmp/vs
    collection_name: conversations
    bm25_k1: 1.2
    bm25_b: 0.6
state_manager:
  db_path: /tmp/state.db
pipelines:
  default:
    batch_size: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vs", cfg.VectorStores.Chroma.PersistDirectory)
	assert.Equal(t, "conversations", cfg.VectorStores.Chroma.CollectionName)
	assert.Equal(t, 1.2, cfg.VectorStores.Chroma.BM25K1)
	assert.Equal(t, 0.6, cfg.VectorStores.Chroma.BM25B)
	assert.Equal(t, 50, cfg.Pipelines.Default.BatchSize)
}

func TestLoadRejectsBadBM25B(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector_stores:\n  chroma:\n    bm25_b: 2.0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
