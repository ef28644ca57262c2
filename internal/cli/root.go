package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recall/config"
	"recall/internal/adapter/cache"
	"recall/internal/adapter/chunker"
	"recall/internal/adapter/embedding"
	"recall/internal/adapter/index"
	"recall/internal/adapter/store"
	"recall/internal/logging"
	"recall/internal/port"
	"recall/internal/usecase"
)

var (
	cfgFile string
	dataDir string
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Personal-knowledge retrieval engine",
	Long: `Recall ingests documents into user-scoped collections, embeds them into a
persistent similarity index, and answers queries with ranked,
context-expanded, category-aware results.

Example usage:
  recall collection create notes          # Create a collection
  recall ingest ./docs -c <collection>    # Ingest a directory
  recall query -c <collection> -q "..."   # Search`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			wd, werr := os.Getwd()
			if werr != nil {
				return fmt.Errorf("failed to get working directory: %w", werr)
			}
			cfg, err = config.LoadFromDir(wd)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dataDir != "" {
			cfg.Storage.DataDir = dataDir
		}

		logger, err = logging.New(cfg.Logging.Level)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./recall.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default is ~/.recall)")
}

// openEngine wires the stores, index manager, embedder, and chunker into an
// Engine. The returned cleanup closes both databases.
func openEngine() (*usecase.Engine, func(), error) {
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}

	metaStore, err := store.NewSQLiteStore(config.MetadataDBPath(dir))
	if err != nil {
		return nil, nil, err
	}

	indexes, err := index.NewManager(config.VectorDBPath(dir), embedder.ModelName(), embedder.Dimension())
	if err != nil {
		metaStore.Close()
		return nil, nil, err
	}

	var queryCache *cache.QueryCache
	if cfg.Cache.Enabled {
		queryCache = cache.NewQueryCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	}

	engine := usecase.NewEngine(
		metaStore,
		indexes,
		embedder,
		chunker.NewSentenceChunker(cfg.Chunking.ChunkTokens, cfg.Chunking.OverlapTokens),
		logger,
		usecase.Options{
			Overfetch:    cfg.Retrieve.OverfetchFactor,
			CategoryBias: cfg.Retrieve.CategoryBias,
			Cache:        queryCache,
		},
	)

	cleanup := func() {
		indexes.Close()
		metaStore.Close()
	}
	return engine, cleanup, nil
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case "openai":
		return embedding.NewOpenAIProvider(e.APIKeyEnv, e.Model, e.BaseURL, e.Dimension, e.BatchSize)
	case "ollama":
		return embedding.NewOllamaProvider(e.Model, e.BaseURL, e.Dimension, e.BatchSize), nil
	case "hash":
		return embedding.NewHashProvider(e.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", e.Provider)
	}
}
