package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
  timeout: 3s
chunking:
  similarity_threshold: 0.55
  min_chunk_size: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.Timeout != 3*time.Second {
		t.Errorf("storage timeout: got %v", cfg.Storage.Timeout)
	}
	if cfg.Chunking.SimilarityThreshold != 0.55 || cfg.Chunking.MinChunkSize != 50 {
		t.Errorf("chunking: got %+v", cfg.Chunking)
	}
	if cfg.Chunking.MaxChunkSize != 2000 {
		t.Errorf("max chunk size should default to 2000, got %d", cfg.Chunking.MaxChunkSize)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/records.db"
watch:
  directories: ["./dev/sample"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "records.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "dev", "sample")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
	if cfg.Storage.BleveIndexPath != "" {
		t.Errorf("empty bleve path should stay empty, got %s", cfg.Storage.BleveIndexPath)
	}
}

func TestLoad_envFileNextToConfig(t *testing.T) {
	path := writeConfig(t, `
embedding:
  provider: openai
  api_key_env: BUNSHO_TEST_API_KEY
`)
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, []byte("BUNSHO_TEST_API_KEY=sk-from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BUNSHO_TEST_API_KEY") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Embedding.APIKey(); got != "sk-from-dotenv" {
		t.Errorf("APIKey() = %q", got)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("openai dimensions should default to 1536, got %d", cfg.Embedding.Dimensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("default backend: got %s", cfg.Storage.Backend)
	}
	if cfg.Chunking.SimilarityThreshold != 0 || cfg.Chunking.MinChunkSize != 200 ||
		cfg.Chunking.ContextSentences != 3 || cfg.Chunking.FallbackChunkSize != 1000 {
		t.Errorf("chunking defaults: got %+v", cfg.Chunking)
	}
	if cfg.Search.KeywordWeight != 0.4 || cfg.Search.SemanticWeight != 0.6 {
		t.Errorf("fusion weights: got %v/%v", cfg.Search.KeywordWeight, cfg.Search.SemanticWeight)
	}
	if cfg.Embedding.Concurrency != 1 || cfg.Embedding.Burst != 1 {
		t.Errorf("embedding throttle defaults: got %+v", cfg.Embedding)
	}
	if len(cfg.Watch.Extensions) != 6 || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "magic" }},
		{"openai without key", func(c *Config) {
			c.Embedding.Provider = "openai"
			c.Embedding.APIKeyEnv = "BUNSHO_TEST_UNSET_KEY"
		}},
		{"onnx without model", func(c *Config) { c.Embedding.Provider = "onnx" }},
		{"threshold out of range", func(c *Config) { c.Chunking.SimilarityThreshold = 1.5 }},
		{"negative min size", func(c *Config) { c.Chunking.MinChunkSize = -1 }},
		{"min above max", func(c *Config) { c.Chunking.MinChunkSize = 5000 }},
		{"negative rate", func(c *Config) { c.Embedding.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db", Timeout: 5 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Storage.Timeout != 5*time.Second {
		t.Errorf("loaded timeout: got %v", loaded.Storage.Timeout)
	}
}

func TestSimilarityThreshold_zeroIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "chunking:\n  similarity_threshold: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.SimilarityThreshold != 0 {
		t.Errorf("explicit zero threshold: got %v", cfg.Chunking.SimilarityThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	cfg, err = Load(writeConfig(t, "chunking:\n  min_chunk_size: 50\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.SimilarityThreshold != DefaultSimilarityThreshold {
		t.Errorf("absent threshold: got %v, want %v", cfg.Chunking.SimilarityThreshold, DefaultSimilarityThreshold)
	}
	if got := Default().Chunking.SimilarityThreshold; got != DefaultSimilarityThreshold {
		t.Errorf("Default threshold: got %v", got)
	}
}
