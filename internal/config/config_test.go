package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 4, cfg.RAG.RetrievalK)
	assert.True(t, cfg.RAG.RAGEnabled)
	assert.Equal(t, "test-key", cfg.ChatLLM.Key)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "./chroma_db", cfg.Store.Path)
}

func TestLoadConfigOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("DOCQA_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
rag:
  chunk_size: 500
  chunk_overlap: 50
  retrieval_k: 2
  rag_enabled: false
  answer_style: extractive
chat_llm:
  provider: openai
  key: ${DOCQA_TEST_KEY}
  model: gpt-4o-mini
  models: [gpt-4o-mini, gpt-4o]
fetch:
  timeout: 3s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 2, cfg.RAG.RetrievalK)
	assert.False(t, cfg.RAG.RAGEnabled)
	assert.Equal(t, StyleExtractive, cfg.RAG.AnswerStyle)
	assert.Equal(t, "sk-from-env", cfg.ChatLLM.Key)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	// untouched sections keep their defaults
	assert.Equal(t, ProviderOllama, cfg.EmbedLLM.Provider)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }},
		{"overlap above size", func(c *Config) { c.RAG.ChunkOverlap = 2000 }},
		{"zero chunk size", func(c *Config) { c.RAG.ChunkSize = 0 }},
		{"zero k", func(c *Config) { c.RAG.RetrievalK = 0 }},
		{"unknown style", func(c *Config) { c.RAG.AnswerStyle = "poetic" }},
		{"placeholder key", func(c *Config) { c.ChatLLM.Key = "YOUR_GOOGLE_API_KEY_HERE" }},
		{"missing key", func(c *Config) { c.ChatLLM.Key = "" }},
		{"unknown provider", func(c *Config) { c.EmbedLLM.Provider = "carrier-pigeon" }},
		{"empty embedding model", func(c *Config) { c.EmbedLLM.Model = "" }},
		{"model not allowed", func(c *Config) { c.ChatLLM.Model = "gpt-2" }},
		{"unknown store", func(c *Config) { c.Store.Type = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Store.Type = StorePostgres; c.Store.DSN = "" }},
		{"short encryption key", func(c *Config) { c.RAG.EncryptionKey = "short" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ChatLLM.Key = "key"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestLLMConfigStringHidesKey(t *testing.T) {
	l := LLMConfig{Provider: ProviderOpenAI, Model: "gpt-4o", Key: "sk-secret"}
	assert.NotContains(t, l.String(), "sk-secret")
}
