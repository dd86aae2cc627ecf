package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/docmentor/docmentor/internal/vectorindex"
)

// Config holds all configuration for the application
type Config struct {
	Ollama    OllamaConfig    `mapstructure:"ollama" yaml:"ollama"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
	TEI       TEIConfig       `mapstructure:"tei" yaml:"tei"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Generator GeneratorConfig `mapstructure:"generator" yaml:"generator"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Splitter  SplitterConfig  `mapstructure:"splitter" yaml:"splitter"`
	Loader    LoaderConfig    `mapstructure:"loader" yaml:"loader"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// OllamaConfig holds Ollama-related configuration
type OllamaConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	ChatModel      string `mapstructure:"chat_model" yaml:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
	Timeout        int    `mapstructure:"timeout" yaml:"timeout"` // seconds
}

// OpenAIConfig holds configuration for OpenAI-compatible APIs
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	ChatModel      string `mapstructure:"chat_model" yaml:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
	Timeout        int    `mapstructure:"timeout" yaml:"timeout"` // seconds
}

// TEIConfig holds HuggingFace Text Embeddings Inference configuration
type TEIConfig struct {
	Host    string `mapstructure:"host" yaml:"host"`
	Timeout int    `mapstructure:"timeout" yaml:"timeout"` // seconds
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider    string `mapstructure:"provider" yaml:"provider"` // ollama, tei, openai, hash
	BatchSize   int    `mapstructure:"batch_size" yaml:"batch_size"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRetries  int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// GeneratorConfig holds answer generation configuration
type GeneratorConfig struct {
	Provider     string  `mapstructure:"provider" yaml:"provider"` // ollama, openai
	Mode         string  `mapstructure:"mode" yaml:"mode"`         // qa, chat
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`
	HistoryLimit int     `mapstructure:"history_limit" yaml:"history_limit"`
}

// RetrievalConfig holds vector index configuration
type RetrievalConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // flat_l2, flat_cosine
	Dimension   int    `mapstructure:"dimension" yaml:"dimension"`
	TopK        int    `mapstructure:"top_k" yaml:"top_k"`
	Parallelism int    `mapstructure:"parallelism" yaml:"parallelism"`
}

// SplitterConfig holds chunk splitting configuration
type SplitterConfig struct {
	Method      string `mapstructure:"method" yaml:"method"` // fixed_length, markdown
	ChunkLength int    `mapstructure:"chunk_length" yaml:"chunk_length"`
	Overlap     int    `mapstructure:"overlap" yaml:"overlap"`
}

// LoaderConfig holds document loading configuration
type LoaderConfig struct {
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	IgnoreDirs []string `mapstructure:"ignore_dirs" yaml:"ignore_dirs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Mode string `mapstructure:"mode" yaml:"mode"` // debug, release, test
	// IngestRoot is the only directory the API may read files from.
	// Empty disables path ingestion over HTTP.
	IngestRoot string `mapstructure:"ingest_root" yaml:"ingest_root"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Ollama: OllamaConfig{
			Host:           "http://localhost:11434",
			ChatModel:      "qwen2.5:7b",
			EmbeddingModel: "nomic-embed-text",
			Timeout:        120,
		},
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        60,
		},
		TEI: TEIConfig{
			Host:    "http://localhost:8080",
			Timeout: 60,
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			BatchSize:   16,
			Concurrency: 2,
			MaxRetries:  3,
		},
		Generator: GeneratorConfig{
			Provider:     "ollama",
			Mode:         "qa",
			Temperature:  0.2,
			HistoryLimit: 10,
		},
		Retrieval: RetrievalConfig{
			Backend:     string(vectorindex.FlatL2),
			Dimension:   768, // nomic-embed-text dimension
			TopK:        5,
			Parallelism: 4,
		},
		Splitter: SplitterConfig{
			Method:      "fixed_length",
			ChunkLength: 500,
			Overlap:     50,
		},
		Loader: LoaderConfig{
			Extensions: []string{".txt", ".md", ".markdown", ".html", ".htm"},
			IgnoreDirs: []string{".git", "node_modules", "vendor", "__pycache__", ".idea", ".vscode"},
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in default locations
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".docmentor"))
		}
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Environment variable overrides
	v.SetEnvPrefix("DOCMENTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("openai.api_key", "DOCMENTOR_OPENAI_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKeys are bound to DOCMENTOR_<SECTION>_<KEY> so they apply without a config file.
var envKeys = []string{
	"ollama.host",
	"ollama.chat_model",
	"ollama.embedding_model",
	"ollama.timeout",
	"openai.base_url",
	"openai.chat_model",
	"openai.embedding_model",
	"tei.host",
	"embedding.provider",
	"embedding.batch_size",
	"embedding.concurrency",
	"embedding.max_retries",
	"generator.provider",
	"generator.mode",
	"retrieval.backend",
	"retrieval.dimension",
	"retrieval.top_k",
	"retrieval.parallelism",
	"splitter.method",
	"splitter.chunk_length",
	"splitter.overlap",
	"server.host",
	"server.port",
	"server.mode",
	"server.ingest_root",
	"log.level",
	"log.format",
}

// Validate checks value ranges and resolves the index backend.
func (c *Config) Validate() error {
	if _, err := vectorindex.ParseBackend(c.Retrieval.Backend); err != nil {
		return fmt.Errorf("retrieval.backend: %w", err)
	}
	if c.Retrieval.Dimension <= 0 {
		return fmt.Errorf("retrieval.dimension must be positive, got %d", c.Retrieval.Dimension)
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 128 {
		return fmt.Errorf("retrieval.top_k must be between 1 and 128, got %d", c.Retrieval.TopK)
	}
	if c.Splitter.ChunkLength <= 0 {
		return fmt.Errorf("splitter.chunk_length must be positive, got %d", c.Splitter.ChunkLength)
	}
	if c.Splitter.Overlap < 0 || c.Splitter.Overlap >= c.Splitter.ChunkLength {
		return fmt.Errorf("splitter.overlap must be in [0, chunk_length), got %d", c.Splitter.Overlap)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Backend returns the resolved index backend.
func (c *Config) Backend() vectorindex.Backend {
	b, err := vectorindex.ParseBackend(c.Retrieval.Backend)
	if err != nil {
		return vectorindex.DefaultBackend
	}
	return b
}

// DefaultPath returns ~/.docmentor/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".docmentor", "config.yaml"), nil
}

// Save writes the configuration as YAML. The API key is never written.
func (c *Config) Save(path string) error {
	out := *c
	out.OpenAI.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
