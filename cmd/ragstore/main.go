// Package main implements the ragstore CLI for ingesting documents into and
// querying a configured vector store backend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

var (
	configPath string
	collection string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragstore",
	Short: "Ingest documents into and query a vector store",
	Long: `ragstore manages a RAG vector store: it chunks and embeds documents,
deduplicates them by content hash, and answers similarity queries with
source citations. The backend (chromem, elasticsearch, qdrant) and the
embedding provider are chosen by configuration.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "override the configured collection name")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(resetCmd)
}

// app holds the wired components a command needs.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	provider embeddings.Provider
	store    vectorstore.Store
}

// openApp loads config, builds the logger, embedder, and store, and runs the
// store's two-phase initialization.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if collection != "" {
		cfg.VectorStore.Collection = collection
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	provider, err := embeddings.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("building embedding provider: %w", err)
	}

	store, err := vectorstore.NewStore(cfg, logger)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("building vector store: %w", err)
	}
	if err := store.Initialize(ctx, provider); err != nil {
		_ = store.Close()
		_ = provider.Close()
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}

	return &app{cfg: cfg, logger: logger, provider: provider, store: store}, nil
}

func (a *app) close() {
	_ = a.store.Close()
	_ = a.provider.Close()
	_ = a.logger.Sync()
}
