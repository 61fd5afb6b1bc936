package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"contextcache/internal/cag"
	"contextcache/internal/config"
	"contextcache/internal/embedding"
	"contextcache/internal/gate"
	"contextcache/internal/logging"
	"contextcache/internal/pipeline"
	"contextcache/internal/recall"
	"contextcache/internal/server"
	"contextcache/internal/sfc"
	"contextcache/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "contextcache",
	Short: "ContextCache - shared memory engine for coding agents",
	Long: `ContextCache is a multi-tenant memory engine: agents and humans write
project memories through an ingestion pipeline, and recall them through a
hybrid lexical/vector ranker fronted by a pheromone cache.

Run "contextcache serve" to start the HTTP API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real deployments set the environment directly.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		return logging.Initialize(cfg.Logging.Level, cfg.Logging.JSON)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// serveCmd runs the HTTP API until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ContextCache HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		engine, err := embedding.NewEngine(cfg.Embedding)
		if err != nil {
			return err
		}
		indexer := sfc.NewIndexer(cfg.Hilbert)

		cache := cag.New(cfg.Cache)
		if cache.Enabled() {
			go cache.StartEvaporation(ctx)
		}

		counters, err := openCounters()
		if err != nil {
			return err
		}
		defer counters.Close()
		g := gate.New(counters, st, cfg.Limits)

		reindexer := pipeline.NewReindexer(st, engine, indexer, 256, 4)
		reindexer.Start(ctx, 2)
		defer reindexer.Stop()

		writer := pipeline.NewWriter(st, engine, indexer, reindexer)
		ingestor := pipeline.NewIngestor(st, nil)
		dispatcher := recall.NewDispatcher(st, engine, indexer, cache, g, cfg.Recall, cfg.Hilbert)
		defer dispatcher.Close()

		srv := server.New(st, dispatcher, writer, ingestor, g, cache, nil, cfg.Server, cfg.Limits)
		logging.Get(logging.CategoryBoot).Infof("contextcache %s starting: db=%s embedding=%s",
			cfg.Version, cfg.Database.Path, engine.Name())
		return srv.Run(ctx)
	},
}

// openStore opens the SQLite store, creating the data directory if needed.
func openStore() (*store.Store, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return store.Open(cfg.Database.Path, cfg.Embedding.Dims)
}

// openCounters picks the burst-counter backend: Badger when a directory is
// configured, in-memory otherwise.
func openCounters() (gate.CounterStore, error) {
	if cfg.Limits.CounterDir == "" {
		return gate.NewMemCounters(), nil
	}
	if err := os.MkdirAll(cfg.Limits.CounterDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create counter directory: %w", err)
	}
	return gate.OpenBadgerCounters(cfg.Limits.CounterDir)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
