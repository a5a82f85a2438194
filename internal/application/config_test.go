package application

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, []string{"\n\n", "\n", " ", ".", "|"}, cfg.Ingest.Separators)
	assert.True(t, cfg.Ingest.Lowercase)
	assert.Equal(t, 6, cfg.Retrieval.ChatTopK)
	assert.Equal(t, 10, cfg.Retrieval.EvalTopK)
	assert.InDelta(t, 0.5, cfg.Evaluation.SemanticThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Evaluation.LexicalThreshold, 1e-9)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: openai
  model: gpt-4o-mini
  timeout: 45s
embedding:
  provider: hash
  dimension: 128
store:
  driver: memory
ingest:
  docs_dir: ./docs
  chunk_size: 500
  chunk_overlap: 50
retrieval:
  chat_top_k: 4
units:
  answer:
    temperature: 0.2
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 128, cfg.Embedding.Dimension)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.Equal(t, 4, cfg.Retrieval.ChatTopK)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Retrieval.EvalTopK)
	assert.Equal(t, "results_new.csv", cfg.Evaluation.Output)
	assert.Equal(t, 0.2, cfg.Units["answer"]["temperature"])
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: openai
store:
  driver: memory
`)
	t.Setenv("RAGQA_LLM_PROVIDER", "anthropic")
	t.Setenv("RAGQA_LLM_API_KEY", "sk-test")
	t.Setenv("RAGQA_RETRIEVAL_EVAL_TOP_K", "8")
	t.Setenv("RAGQA_INGEST_PATTERNS", "**/*.txt,docs/*.md")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 8, cfg.Retrieval.EvalTopK)
	assert.Equal(t, []string{"**/*.txt", "docs/*.md"}, cfg.Ingest.Patterns)
	// PATH is always set; the store path must not pick it up.
	assert.Equal(t, "vectordb/ragqa.db", cfg.Store.Path)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("RAGQA_EMBEDDING_PROVIDER=hash\nRAGQA_STORE_DRIVER=memory\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("RAGQA_EMBEDDING_PROVIDER")
		os.Unsetenv("RAGQA_STORE_DRIVER")
	})

	cfg, err := LoadConfig("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "llm: [unterminated"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing config file")
	})

	t.Run("missing env file", func(t *testing.T) {
		_, err := LoadConfig("", filepath.Join(t.TempDir(), "missing.env"))
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{
			name:      "unknown llm provider",
			mutate:    func(c *Config) { c.LLM.Provider = "cohere" },
			wantField: "Config.LLM.Provider",
		},
		{
			name:      "overlap not below chunk size",
			mutate:    func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize },
			wantField: "Config.Ingest.ChunkOverlap",
		},
		{
			name:      "invalid glob",
			mutate:    func(c *Config) { c.Ingest.Patterns = []string{"docs/[a-"} },
			wantField: "Config.Ingest.Patterns[0]",
		},
		{
			name:      "sqlite without path",
			mutate:    func(c *Config) { c.Store.Path = "" },
			wantField: "Config.Store.Path",
		},
		{
			name: "qdrant without host",
			mutate: func(c *Config) {
				c.Store.Driver = "qdrant"
				c.Store.QdrantHost = ""
			},
			wantField: "Config.Store.QdrantHost",
		},
		{
			name:      "threshold above one",
			mutate:    func(c *Config) { c.Evaluation.SemanticThreshold = 1.5 },
			wantField: "Config.Evaluation.SemanticThreshold",
		},
		{
			name:      "unknown unit override",
			mutate:    func(c *Config) { c.Units = map[string]map[string]any{"reranker": {}} },
			wantField: "Config.Units",
		},
		{
			name:      "bad metrics address",
			mutate:    func(c *Config) { c.Metrics.Addr = "not an address" },
			wantField: "Config.Metrics.Addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ports.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantField, cfgErr.ConfigKey)

			var details *domain.ValidationError
			require.True(t, errors.As(err, &details))
			assert.True(t, details.HasErrors())
		})
	}
}

func TestLLMConfig_Resilience(t *testing.T) {
	cfg := DefaultConfig().LLM
	cfg.MaxRetries = 1
	cfg.RateLimit = 2.5
	cfg.Burst = 3
	cfg.Timeout = 10 * time.Second

	res := cfg.Resilience()
	assert.Equal(t, 1, res.MaxRetries)
	assert.InDelta(t, 2.5, res.RequestsPerSec, 1e-9)
	assert.Equal(t, 3, res.Burst)
	assert.Equal(t, 10*time.Second, res.RequestTimeout)
}

func TestStoreConfig_VectorStoreConfig(t *testing.T) {
	cfg := DefaultConfig().Store
	cfg.Driver = "qdrant"
	cfg.QdrantHost = "localhost"

	vc := cfg.VectorStoreConfig(384)
	assert.Equal(t, "qdrant", vc.Driver)
	assert.Equal(t, "localhost", vc.QdrantHost)
	assert.Equal(t, 6334, vc.QdrantPort)
	assert.Equal(t, "ragqa", vc.QdrantCollection)
	assert.Equal(t, 384, vc.Dimension)
}

func TestConfig_UnitOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Temperature = 0.3
	cfg.Evaluation.LexicalThreshold = 0.8
	cfg.Units = map[string]map[string]any{
		"answer":     {"max_tokens": 64, "system": "Be brief."},
		"validation": {"timeout": "10s"},
	}

	overrides := cfg.UnitOverrides()

	assert.Equal(t, map[string]any{
		"temperature": 0.3,
		"max_tokens":  64,
		"system":      "Be brief.",
	}, overrides["answer"])
	assert.Equal(t, map[string]any{
		"semantic_threshold": 0.5,
		"lexical_threshold":  0.8,
	}, overrides["relevance"])
	assert.Equal(t, map[string]any{"timeout": "10s"}, overrides["validation"])

	// The units section itself is left untouched.
	assert.NotContains(t, cfg.Units["answer"], "temperature")
}
