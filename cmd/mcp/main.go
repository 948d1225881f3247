package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/config"
	"github.com/dgallion1/pagechunk/internal/mcp"
	"github.com/dgallion1/pagechunk/internal/pipeline"
	"github.com/dgallion1/pagechunk/internal/sink"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s %s\n", mcp.ServerName, mcp.ServerVersion)
		fmt.Printf("SQLite Driver: %s (%s)\n", sink.DriverName, sink.BuildMode)
		os.Exit(0)
	}

	// Stdout carries the MCP protocol, so logs go to stderr.
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	strategy, _ := chunker.ParseStrategy(cfg.ChunkingStrategy)
	metric := chunker.NewMetric(strategy, cfg.TokenEncoding, log)
	proc, err := pipeline.BuildProcessor(cfg.ExtractorConfig(), cfg.ChunkerConfig(), metric, cfg.ResolverConfig())
	if err != nil {
		log.Error("build processor", "error", err)
		os.Exit(1)
	}

	// The store tools read the database written by prep or the server.
	var store mcp.Store
	if cfg.OutputSQLite {
		db, err := sink.NewSQLite(ctx, cfg.SQLitePath, cfg.IncludeBlocksInOutput)
		if err != nil {
			log.Error("open page store", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer db.Release()
		store = db
	}

	log.Info("starting mcp server", "chunking_strategy", metric.Name(), "store", store != nil)
	if err := mcp.NewServer(proc, store, log).Serve(ctx); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
