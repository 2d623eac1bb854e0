// Package config provides configuration loading and structs for the bunsho server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration is missing a required setting or holds
// an out-of-range value. It is fatal: nothing should be ingested or searched with it.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderHash   = "hash"
)

// StorageConfig selects the record store backend and its paths.
type StorageConfig struct {
	Backend        string        `yaml:"backend"` // sqlite | badger
	DatabasePath   string        `yaml:"database_path"`
	BadgerPath     string        `yaml:"badger_path"`
	BleveIndexPath string        `yaml:"bleve_index_path"` // empty keeps the lexical index in memory
	Timeout        time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedder provider settings and call throttling.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // openai | onnx | hash
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	ModelPath         string        `yaml:"model_path"`
	Dimensions        int           `yaml:"dimensions"`
	MaxTokens         int           `yaml:"max_tokens"`
	CacheSize         int           `yaml:"cache_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Concurrency       int           `yaml:"concurrency"`
}

// APIKey returns the value of the environment variable named by APIKeyEnv.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// ChunkingConfig holds semantic and fallback chunker parameters.
type ChunkingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MinChunkSize        int     `yaml:"min_chunk_size"`
	MaxChunkSize        int     `yaml:"max_chunk_size"`
	ContextSentences    int     `yaml:"context_sentences"`
	FallbackChunkSize   int     `yaml:"fallback_chunk_size"`
}

// SearchConfig holds search limits and fusion weights.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"default_limit"`
	MaxLimit       int     `yaml:"max_limit"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	MinScore       float64 `yaml:"min_score"`
}

// Load reads and parses the config file at path, loads any .env next to it,
// expands paths, and applies defaults. It does not validate; call Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	LoadEnv(configDir)
	ApplyDefaults(cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BadgerPath = expandPath(cfg.Storage.BadgerPath, configDir)
	if cfg.Storage.BleveIndexPath != "" {
		cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return cfg, nil
}

// Default returns a config with every default applied, for running without a config file.
func Default() *Config {
	LoadEnv("")
	cfg := newConfig()
	ApplyDefaults(cfg)
	return cfg
}

// LoadEnv loads .env from dir (when set) and from the working directory.
// Variables already present in the environment win; missing files are ignored.
func LoadEnv(dir string) {
	if dir != "" {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}
	_ = godotenv.Load()
}

// Validate reports settings that make ingestion or search impossible.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.APIKey() == "" {
			return fmt.Errorf("%w: %s is not set", ErrInvalidConfig, c.Embedding.APIKeyEnv)
		}
	case ProviderONNX:
		if c.Embedding.ModelPath == "" {
			return fmt.Errorf("%w: embedding.model_path is required for onnx", ErrInvalidConfig)
		}
	case ProviderHash:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: embedding.requests_per_second must not be negative", ErrInvalidConfig)
	}
	ch := c.Chunking
	if ch.SimilarityThreshold < -1 || ch.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: chunking.similarity_threshold must be in [-1, 1]", ErrInvalidConfig)
	}
	if ch.MinChunkSize <= 0 || ch.MaxChunkSize <= 0 || ch.FallbackChunkSize <= 0 || ch.ContextSentences <= 0 {
		return fmt.Errorf("%w: chunk sizes and context window must be positive", ErrInvalidConfig)
	}
	if ch.MinChunkSize > ch.MaxChunkSize {
		return fmt.Errorf("%w: chunking.min_chunk_size exceeds max_chunk_size", ErrInvalidConfig)
	}
	if c.Search.KeywordWeight < 0 || c.Search.SemanticWeight < 0 || c.Search.KeywordWeight+c.Search.SemanticWeight == 0 {
		return fmt.Errorf("%w: search weights must be non-negative and not both zero", ErrInvalidConfig)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
