// Package application wires the pipeline units, vector store, embedder and
// language model into the chatbot, the indexer and the batch evaluator.
package application

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ragqa/infrastructure/embedding"
	"github.com/ahrav/go-ragqa/infrastructure/ingest"
	"github.com/ahrav/go-ragqa/infrastructure/llm"
	"github.com/ahrav/go-ragqa/infrastructure/units"
	"github.com/ahrav/go-ragqa/infrastructure/vectorstore"
	"github.com/ahrav/go-ragqa/internal/evaluation"
	"github.com/ahrav/go-ragqa/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig,
// for example RAGQA_LLM_PROVIDER.
const EnvPrefix = "RAGQA"

// Config is the complete runtime configuration of the chatbot and the
// evaluation harness. LoadConfig layers it as defaults, then the YAML
// file, then the environment.
type Config struct {
	LLM        LLMConfig        `yaml:"llm" split_words:"true"`
	Embedding  EmbeddingConfig  `yaml:"embedding" split_words:"true"`
	Store      StoreConfig      `yaml:"store" split_words:"true"`
	Ingest     IngestConfig     `yaml:"ingest" split_words:"true"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" split_words:"true"`
	Evaluation EvaluationConfig `yaml:"evaluation" split_words:"true"`
	Log        LogConfig        `yaml:"log" split_words:"true"`
	Metrics    MetricsConfig    `yaml:"metrics" split_words:"true"`
	Tracing    TracingConfig    `yaml:"tracing" split_words:"true"`

	// Units overrides unit parameters by unit type, for example a custom
	// answer prompt under units.answer.prompt.
	Units map[string]map[string]any `yaml:"units" ignored:"true" validate:"unitoverrides"`
}

// LLMConfig selects the chat model and its resilience settings.
type LLMConfig struct {
	Provider    string        `yaml:"provider" split_words:"true" validate:"required,oneof=ollama openai anthropic google"`
	Model       string        `yaml:"model" split_words:"true"`
	BaseURL     string        `yaml:"base_url" split_words:"true" validate:"omitempty,url"`
	APIKey      string        `yaml:"api_key" split_words:"true"`
	Timeout     time.Duration `yaml:"timeout" split_words:"true" validate:"min=0"`
	Temperature float64       `yaml:"temperature" split_words:"true" validate:"min=0,max=2"`
	MaxTokens   int           `yaml:"max_tokens" split_words:"true" validate:"min=1,max=16000"`

	// RateLimit is in requests per second. Zero disables limiting.
	RateLimit       float64       `yaml:"rate_limit" split_words:"true" validate:"min=0"`
	Burst           int           `yaml:"burst" split_words:"true" validate:"min=0"`
	MaxRetries      int           `yaml:"max_retries" split_words:"true" validate:"min=0,max=10"`
	BreakerFailures int           `yaml:"breaker_failures" split_words:"true" validate:"min=0"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" split_words:"true" validate:"min=0"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" split_words:"true" validate:"required,oneof=ollama openai google hash"`
	Model     string `yaml:"model" split_words:"true"`
	BaseURL   string `yaml:"base_url" split_words:"true" validate:"omitempty,url"`
	APIKey    string `yaml:"api_key" split_words:"true"`
	Dimension int    `yaml:"dimension" split_words:"true" validate:"min=0,max=65536"`
	BatchSize int    `yaml:"batch_size" split_words:"true" validate:"min=0,max=2048"`
	// CacheSize bounds the in-process embedding cache. Zero disables it.
	CacheSize int           `yaml:"cache_size" split_words:"true" validate:"min=0"`
	CacheTTL  time.Duration `yaml:"cache_ttl" split_words:"true" validate:"min=0"`
	Timeout   time.Duration `yaml:"timeout" split_words:"true" validate:"min=0"`
}

// StoreConfig selects the vector store.
type StoreConfig struct {
	Driver string `yaml:"driver" split_words:"true" validate:"required,oneof=memory sqlite qdrant"`
	Path   string `yaml:"path" split_words:"true" validate:"required_if=Driver sqlite"`

	QdrantHost       string `yaml:"qdrant_host" split_words:"true" validate:"required_if=Driver qdrant"`
	QdrantPort       int    `yaml:"qdrant_port" split_words:"true" validate:"min=0,max=65535"`
	QdrantAPIKey     string `yaml:"qdrant_api_key" split_words:"true"`
	QdrantUseTLS     bool   `yaml:"qdrant_use_tls" split_words:"true"`
	QdrantCollection string `yaml:"qdrant_collection" split_words:"true" validate:"required_if=Driver qdrant"`
}

// IngestConfig controls document discovery and chunking.
type IngestConfig struct {
	DocsDir      string   `yaml:"docs_dir" split_words:"true"`
	Patterns     []string `yaml:"patterns" split_words:"true" validate:"min=1,dive,globpattern"`
	ChunkSize    int      `yaml:"chunk_size" split_words:"true" validate:"min=1"`
	ChunkOverlap int      `yaml:"chunk_overlap" split_words:"true" validate:"min=0,ltfield=ChunkSize"`
	Separators   []string `yaml:"separators" split_words:"true"`
	Lowercase    bool     `yaml:"lowercase" split_words:"true"`
	Workers      int      `yaml:"workers" split_words:"true" validate:"min=1,max=64"`
	// Debounce delays re-indexing after a file change in watch mode.
	Debounce time.Duration `yaml:"debounce" split_words:"true" validate:"min=0"`
}

// RetrievalConfig sets how many chunks are retrieved.
type RetrievalConfig struct {
	ChatTopK int `yaml:"chat_top_k" split_words:"true" validate:"min=1,max=100"`
	EvalTopK int `yaml:"eval_top_k" split_words:"true" validate:"min=1,max=100"`
}

// EvaluationConfig controls the batch evaluation.
type EvaluationConfig struct {
	Queries           string  `yaml:"queries" split_words:"true"`
	Output            string  `yaml:"output" split_words:"true"`
	SemanticThreshold float64 `yaml:"semantic_threshold" split_words:"true" validate:"min=0,max=1"`
	LexicalThreshold  float64 `yaml:"lexical_threshold" split_words:"true" validate:"min=0,max=1"`
	Concurrency       int     `yaml:"concurrency" split_words:"true" validate:"min=1,max=64"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level" split_words:"true" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" split_words:"true" validate:"omitempty,oneof=text json"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" split_words:"true" validate:"omitempty,hostname_port"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint" split_words:"true"`
	Insecure     bool    `yaml:"insecure" split_words:"true"`
	SamplingRate float64 `yaml:"sampling_rate" split_words:"true" validate:"min=0,max=1"`
}

// DefaultConfig returns the settings of a local Ollama deployment that
// indexes ./data into ./vectordb.
func DefaultConfig() Config {
	res := llm.DefaultResilience()
	return Config{
		LLM: LLMConfig{
			Provider:        "ollama",
			Model:           llm.OllamaDefaultModel,
			Timeout:         res.RequestTimeout,
			Temperature:     0,
			MaxTokens:       units.DefaultAnswerMaxTokens,
			RateLimit:       res.RequestsPerSec,
			Burst:           res.Burst,
			MaxRetries:      res.MaxRetries,
			BreakerFailures: res.BreakerFailures,
			BreakerCooldown: res.BreakerCooldown,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			BatchSize: embedding.DefaultBatchSize,
			CacheSize: 10000,
			Timeout:   time.Minute,
		},
		Store: StoreConfig{
			Driver:           "sqlite",
			Path:             "vectordb/ragqa.db",
			QdrantPort:       6334,
			QdrantCollection: "ragqa",
		},
		Ingest: IngestConfig{
			DocsDir:      "data",
			Patterns:     append([]string(nil), ingest.DefaultPatterns...),
			ChunkSize:    ingest.DefaultChunkSize,
			ChunkOverlap: ingest.DefaultChunkOverlap,
			Separators:   append([]string(nil), ingest.DefaultSeparators...),
			Lowercase:    true,
			Workers:      4,
			Debounce:     ingest.DefaultDebounce,
		},
		Retrieval: RetrievalConfig{
			ChatTopK: units.DefaultTopK,
			EvalTopK: units.DefaultEvalTopK,
		},
		Evaluation: EvaluationConfig{
			Queries:           "query.json",
			Output:            "results_new.csv",
			SemanticThreshold: evaluation.DefaultRelevanceThreshold,
			LexicalThreshold:  evaluation.DefaultRelevanceThreshold,
			Concurrency:       4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Insecure:     true,
			SamplingRate: 1,
		},
	}
}

// LoadConfig reads the YAML file at path, when path is not empty, over
// DefaultConfig and then applies RAGQA_* environment variables. envFiles
// are loaded into the environment first without overriding variables
// that are already set. With no envFiles a .env in the working directory
// is used if present.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		panic(err)
	}
	return v
}

// Validate checks struct constraints and returns a ConfigError listing
// every violated field.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return newConfigError(err)
	}
	return nil
}

// Resilience maps the LLM section onto the llm middleware settings.
func (c LLMConfig) Resilience() llm.Resilience {
	res := llm.DefaultResilience()
	res.MaxRetries = c.MaxRetries
	res.RequestsPerSec = c.RateLimit
	if c.Burst > 0 {
		res.Burst = c.Burst
	}
	if c.Timeout > 0 {
		res.RequestTimeout = c.Timeout
	}
	if c.BreakerFailures > 0 {
		res.BreakerFailures = c.BreakerFailures
	}
	if c.BreakerCooldown > 0 {
		res.BreakerCooldown = c.BreakerCooldown
	}
	return res
}

// ClientConfig returns the provider settings for llm.NewClient.
func (c LLMConfig) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		APIKey:  c.APIKey,
		Model:   c.Model,
		BaseURL: c.BaseURL,
		Timeout: c.Timeout,
	}
}

// EmbedderConfig returns the settings for embedding.New.
func (c EmbeddingConfig) EmbedderConfig() embedding.Config {
	return embedding.Config{
		Provider:  c.Provider,
		Model:     c.Model,
		BaseURL:   c.BaseURL,
		APIKey:    c.APIKey,
		Dimension: c.Dimension,
		Timeout:   c.Timeout,
		BatchSize: c.BatchSize,
	}
}

// VectorStoreConfig returns the settings for vectorstore.New. dim is the
// embedder's dimension, used to create a Qdrant collection eagerly.
func (c StoreConfig) VectorStoreConfig(dim int) vectorstore.Config {
	return vectorstore.Config{
		Driver:           c.Driver,
		Path:             c.Path,
		QdrantHost:       c.QdrantHost,
		QdrantPort:       c.QdrantPort,
		QdrantAPIKey:     c.QdrantAPIKey,
		QdrantUseTLS:     c.QdrantUseTLS,
		QdrantCollection: c.QdrantCollection,
		Dimension:        dim,
	}
}

// TelemetryConfig returns the settings for telemetry.Setup.
func (c TracingConfig) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    "ragqa",
		ServiceVersion: version,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		SamplingRate:   c.SamplingRate,
	}
}

// UnitOverrides returns the per-unit-type parameters derived from the llm
// and evaluation sections, with the units section applied on top.
func (c *Config) UnitOverrides() map[string]map[string]any {
	overrides := map[string]map[string]any{
		UnitTypeAnswer: {
			"temperature": c.LLM.Temperature,
			"max_tokens":  c.LLM.MaxTokens,
		},
		UnitTypeRelevance: {
			"semantic_threshold": c.Evaluation.SemanticThreshold,
			"lexical_threshold":  c.Evaluation.LexicalThreshold,
		},
	}
	for unitType, params := range c.Units {
		merged := make(map[string]any, len(params))
		maps.Copy(merged, overrides[unitType])
		maps.Copy(merged, params)
		overrides[unitType] = merged
	}
	return overrides
}
