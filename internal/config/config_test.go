package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/vectorindex"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, vectorindex.FlatL2, cfg.Backend())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  backend: flat_cosine
  dimension: 384
  top_k: 8
splitter:
  method: markdown
  chunk_length: 300
  overlap: 30
embedding:
  provider: hash
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, vectorindex.FlatCosine, cfg.Backend())
	assert.Equal(t, 384, cfg.Retrieval.Dimension)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, "markdown", cfg.Splitter.Method)
	assert.Equal(t, "hash", cfg.Embedding.Provider)

	// untouched sections keep their defaults
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 4\n"), 0644))

	t.Setenv("DOCMENTOR_RETRIEVAL_TOP_K", "12")
	t.Setenv("DOCMENTOR_EMBEDDING_PROVIDER", "tei")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, "tei", cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoad_UnknownBackendFailsFast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  backend: hnsw\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrUnknownBackend)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dimension", func(c *Config) { c.Retrieval.Dimension = 0 }},
		{"top_k too large", func(c *Config) { c.Retrieval.TopK = 129 }},
		{"top_k zero", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"overlap not below length", func(c *Config) { c.Splitter.Overlap = c.Splitter.ChunkLength }},
		{"negative overlap", func(c *Config) { c.Splitter.Overlap = -1 }},
		{"zero batch", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retrieval.TopK = 9
	cfg.OpenAI.APIKey = "secret"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Equal(t, "secret", cfg.OpenAI.APIKey, "Save must not mutate the receiver")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Retrieval.TopK)
	assert.Equal(t, cfg.Loader.Extensions, loaded.Loader.Extensions)
}
