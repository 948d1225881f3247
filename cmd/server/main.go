package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/pagechunk/internal/api"
	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/config"
	"github.com/dgallion1/pagechunk/internal/pipeline"
	"github.com/dgallion1/pagechunk/internal/sink"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strategy, _ := chunker.ParseStrategy(cfg.ChunkingStrategy)
	metric := chunker.NewMetric(strategy, cfg.TokenEncoding, log)
	proc, err := pipeline.BuildProcessor(cfg.ExtractorConfig(), cfg.ChunkerConfig(), metric, cfg.ResolverConfig())
	if err != nil {
		log.Error("build processor", "error", err)
		os.Exit(1)
	}

	// Ingested pages always land in SQLite so they can be queried back.
	store, err := sink.NewSQLite(ctx, cfg.SQLitePath, cfg.IncludeBlocksInOutput)
	if err != nil {
		log.Error("open page store", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}

	stats := &pipeline.Stats{}
	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Workers:   cfg.WorkerCount,
		QueueSize: cfg.MaxQueueSize,
		JobTTL:    cfg.JobTTL,
	}, proc, store, stats, pipeline.NewLatencyStats(cfg.JobTTL), log)
	orch.Start(ctx)

	srv := api.NewServer(orch, store, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	started := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()

		totals := stats.Snapshot()
		summary := sink.Summary{
			Pages:    totals.Pages,
			Failed:   totals.Failed,
			Empty:    totals.Empty,
			Chunks:   totals.Chunks,
			Blocks:   totals.Blocks,
			Tokens:   totals.Tokens,
			Duration: time.Since(started),
			Settings: cfg.Settings(metric.Name()),
		}
		if err := store.Close(shutdownCtx, summary); err != nil {
			log.Error("close page store", "error", err)
		}
	}()

	log.Info("starting pagechunk", "port", cfg.Port, "chunking_strategy", metric.Name(), "sqlite_path", cfg.SQLitePath)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
