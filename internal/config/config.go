// Package config provides configuration loading and structs for the Hanashi server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Model     ModelConfig     `yaml:"model"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Memory    MemoryConfig    `yaml:"memory"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	CLI       CLIConfig       `yaml:"cli"`
	Stream    StreamConfig    `yaml:"stream"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig selects and configures the embedding collaborator.
// Provider is one of "onnx", "ollama" or "mock".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// VectorConfig selects the similarity index: "memory" or "chromem".
type VectorConfig struct {
	Type     string `yaml:"type"`
	Compress bool   `yaml:"compress"`
}

// ModelConfig selects and configures the chat model collaborator.
// Provider is one of "anthropic", "ollama" or "mock".
type ModelConfig struct {
	Provider       string   `yaml:"provider"`
	Name           string   `yaml:"name"`
	BaseURL        string   `yaml:"base_url"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// TemperatureOrDefault returns the configured temperature; RAG chat defaults to 0.
func (m *ModelConfig) TemperatureOrDefault() float64 {
	if m.Temperature != nil {
		return *m.Temperature
	}
	return 0
}

// ChunkingConfig holds the window parameters for splitting documents.
type ChunkingConfig struct {
	ChunkSize           int   `yaml:"chunk_size"`
	ChunkOverlap        *int  `yaml:"chunk_overlap"`
	NormalizeWhitespace *bool `yaml:"normalize_whitespace"`
}

// OverlapOrDefault returns the configured overlap, 100 when unset. Zero is a valid overlap.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return 100
}

// NormalizeOrDefault reports whether whitespace runs are collapsed before chunking; defaults to true.
func (c *ChunkingConfig) NormalizeOrDefault() bool {
	if c.NormalizeWhitespace != nil {
		return *c.NormalizeWhitespace
	}
	return true
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	DocumentLocationPattern string   `yaml:"document_location_pattern"`
	InitOnStart             bool     `yaml:"init_on_start"`
	EnrichKeywords          *bool    `yaml:"enrich_keywords"`
	KeywordCount            int      `yaml:"keyword_count"`
	Watch                   bool     `yaml:"watch"`
	Extensions              []string `yaml:"extensions"`
}

// EnrichKeywordsOrDefault reports whether chunks get model-extracted keywords; defaults to true.
func (i *IngestConfig) EnrichKeywordsOrDefault() bool {
	if i.EnrichKeywords != nil {
		return *i.EnrichKeywords
	}
	return true
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	WindowSize int `yaml:"window_size"`
}

// Retrieval failure policies.
const (
	OnErrorFail  = "fail"
	OnErrorEmpty = "empty"
)

// RetrievalConfig holds the augmentation settings. AllowEmptyContext and OnError
// are independent: one governs a search with no hits, the other a search that failed.
type RetrievalConfig struct {
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	TopK                int      `yaml:"top_k"`
	AllowEmptyContext   *bool    `yaml:"allow_empty_context"`
	OnError             string   `yaml:"on_error"`
}

// ThresholdOrDefault returns the configured threshold, 0.3 when unset.
func (r *RetrievalConfig) ThresholdOrDefault() float64 {
	if r.SimilarityThreshold != nil {
		return *r.SimilarityThreshold
	}
	return 0.3
}

// AllowEmptyContextOrDefault defaults to true when unset.
func (r *RetrievalConfig) AllowEmptyContextOrDefault() bool {
	if r.AllowEmptyContext != nil {
		return *r.AllowEmptyContext
	}
	return true
}

// CLIConfig holds interactive console settings.
type CLIConfig struct {
	FilterExpression string `yaml:"filter_expression"`
	PrintDocuments   *bool  `yaml:"print_documents"`
	TranscriptPath   string `yaml:"transcript_path"`
}

// PrintDocumentsOrDefault defaults to true when unset.
func (c *CLIConfig) PrintDocumentsOrDefault() bool {
	if c.PrintDocuments != nil {
		return *c.PrintDocuments
	}
	return true
}

// StreamConfig holds streaming settings.
type StreamConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or if the result is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Ingest.DocumentLocationPattern != "" {
		cfg.Ingest.DocumentLocationPattern = expandPath(cfg.Ingest.DocumentLocationPattern, configDir)
	}
	if cfg.CLI.TranscriptPath != "" {
		cfg.CLI.TranscriptPath = expandPath(cfg.CLI.TranscriptPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would make a component unusable.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.OverlapOrDefault() < 0 {
		return fmt.Errorf("chunking.chunk_overlap must not be negative, got %d", c.Chunking.OverlapOrDefault())
	}
	if c.Memory.WindowSize <= 0 {
		return fmt.Errorf("memory.window_size must be positive, got %d", c.Memory.WindowSize)
	}
	if t := c.Retrieval.ThresholdOrDefault(); t < 0 || t > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0,1], got %v", t)
	}
	switch c.Retrieval.OnError {
	case OnErrorFail, OnErrorEmpty:
	default:
		return fmt.Errorf("retrieval.on_error must be %q or %q, got %q", OnErrorFail, OnErrorEmpty, c.Retrieval.OnError)
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
