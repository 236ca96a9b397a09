// Package main provides the vector database's CLI entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vectordb/vectordb/pkg/config"
	"github.com/vectordb/vectordb/pkg/engine"
	"github.com/vectordb/vectordb/pkg/server"
	"github.com/vectordb/vectordb/pkg/storage"
)

var buildVersion = server.Version

func main() {
	rootCmd := &cobra.Command{
		Use:   "vectordb",
		Short: "A persistent vector database with HNSW-based similarity search",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vectordb v%s\n", buildVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the vector database HTTP server",
		RunE:  runServe,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Printf("starting vectordb v%s", buildVersion)
	log.Print(cfg.String())

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	store, err := storage.OpenBadgerStore(storage.BadgerOptions{
		DataDir:      cfg.DataDir,
		SyncWrites:   cfg.Badger.SyncWrites,
		MemTableMB:   cfg.Badger.MemTableMB,
		ValueLogMB:   cfg.Badger.ValueLogMB,
		BlockCacheMB: cfg.Badger.BlockCacheMB,
	})
	if err != nil {
		return fmt.Errorf("opening data store: %w", err)
	}
	defer store.Close()

	eng, err := engine.Open(store)
	if err != nil {
		return fmt.Errorf("recovering collections: %w", err)
	}

	srv := server.New(eng, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("serving on %s", cfg.HTTPAddr)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Print("shutdown complete")
	return nil
}
