package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider       string  `yaml:"provider"`    // "jina" or "mock"
	Model          string  `yaml:"model"`       // e.g., "jina-embeddings-v3"
	APIKeyEnv      string  `yaml:"api_key_env"` // Environment variable for API key
	Dimension      int     `yaml:"dimension"`
	BatchSize      int     `yaml:"batch_size"`
	MaxAttempts    int     `yaml:"max_attempts"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	// Dir is the base directory for the document/vector database and
	// the embedding cache. Empty means the working directory.
	Dir string `yaml:"dir"`
}

// SearchConfig holds search configuration.
type SearchConfig struct {
	TopK int `yaml:"top_k"`
	// SemanticWeight and LexicalWeight control the hybrid merge. They apply
	// to documents found by both paths; a document found by a single path
	// keeps that path's raw score.
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
}

// RetentionConfig holds age-based cleanup configuration.
type RetentionConfig struct {
	MaxAgeDays int `yaml:"max_age_days"` // 0 disables retention cleanup
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Dir: "",
		},
		Embedding: EmbeddingConfig{
			Provider:       "jina",
			Model:          "jina-embeddings-v3",
			APIKeyEnv:      "JINA_API_KEY",
			Dimension:      1024,
			BatchSize:      32,
			MaxAttempts:    3,
			RequestsPerSec: 2,
		},
		Search: SearchConfig{
			TopK:           10,
			SemanticWeight: 0.7,
			LexicalWeight:  0.3,
		},
		Retention: RetentionConfig{
			MaxAgeDays: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for finsight.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "finsight.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".finsight", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DataDBPath returns the path to the document and vector database.
func DataDBPath(dir string) string {
	return filepath.Join(dir, ".finsight", "data.db")
}

// CacheDBPath returns the path to the embedding cache database.
// The cache is keyed by content hash only, so switching embedding models
// requires pointing at a fresh cache directory.
func CacheDBPath(dir string) string {
	return filepath.Join(dir, ".finsight", "cache.db")
}

// EnsureDataDir ensures the .finsight directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".finsight"), 0755)
}
