package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig locates the durable state.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ChunkingConfig bounds chunk size in approximate tokens.
type ChunkingConfig struct {
	ChunkTokens   int `yaml:"chunk_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "openai", "ollama", "hash"
	Model     string `yaml:"model"`       // e.g. "text-embedding-3-small"
	APIKeyEnv string `yaml:"api_key_env"` // environment variable holding the API key
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"` // internal re-batching policy, not a caller contract
}

// RetrieveConfig tunes query-time ranking.
type RetrieveConfig struct {
	TopK            int     `yaml:"top_k"`
	OverfetchFactor int     `yaml:"overfetch_factor"`
	ContextWindow   int     `yaml:"context_window"`
	CategoryBias    float64 `yaml:"category_bias"`
}

// IngestConfig filters batch directory ingest.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// CacheConfig tunes query result memoization.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "", // resolved to ~/.recall by DataDir()
		},
		Chunking: ChunkingConfig{
			ChunkTokens:   500,
			OverlapTokens: 50,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			BatchSize: 100,
		},
		Retrieve: RetrieveConfig{
			TopK:            10,
			OverfetchFactor: 3,
			ContextWindow:   1,
			CategoryBias:    0.15,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.txt", "**/*.md", "**/*.markdown", "**/*.json"},
			Excludes: []string{"**/.git/**", "**/node_modules/**", "**/.recall/**"},
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 100,
			TTLSeconds: 300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, layered over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir looks for recall.yaml in the directory, falling back to
// defaults.
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "recall.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	return DefaultConfig(), nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DataDir resolves the configured data directory, defaulting to ~/.recall.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".recall"), nil
}

// MetadataDBPath returns the SQLite metadata database path.
func MetadataDBPath(dataDir string) string {
	return filepath.Join(dataDir, "metadata.db")
}

// VectorDBPath returns the vector index artifact path.
func VectorDBPath(dataDir string) string {
	return filepath.Join(dataDir, "vectors.db")
}
