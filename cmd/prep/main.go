package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/config"
	"github.com/dgallion1/pagechunk/internal/confluence"
	"github.com/dgallion1/pagechunk/internal/pipeline"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/dgallion1/pagechunk/internal/source"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateBatch(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	strategy, _ := chunker.ParseStrategy(cfg.ChunkingStrategy)
	metric := chunker.NewMetric(strategy, cfg.TokenEncoding, log)
	proc, err := pipeline.BuildProcessor(cfg.ExtractorConfig(), cfg.ChunkerConfig(), metric, cfg.ResolverConfig())
	if err != nil {
		return fmt.Errorf("build processor: %w", err)
	}

	src, closeSrc := newSource(cfg, log)
	defer closeSrc()

	snk, err := newSink(ctx, cfg)
	if err != nil {
		return err
	}

	latency := pipeline.NewLatencyStats(0)
	runner := pipeline.NewRunner(proc, pipeline.RunnerConfig{
		Workers:   cfg.WorkerCount,
		QueueSize: cfg.MaxQueueSize,
		Settings:  cfg.Settings(metric.Name()),
	}, latency, log)

	log.Info("starting run",
		"source", cfg.Source,
		"chunk_size", cfg.ChunkSize,
		"chunk_overlap", cfg.ChunkOverlap,
		"chunking_strategy", metric.Name(),
		"workers", cfg.WorkerCount,
	)
	summary, runErr := runner.Run(ctx, src, snk)

	// The sink is closed even after a failed run so partial output is flushed.
	closeErr := snk.Close(context.WithoutCancel(ctx), summary)

	if cfg.ShowPerformanceMetrics {
		for stage, snap := range latency.Snapshot() {
			log.Info("stage latency", "stage", stage, "count", snap.Count,
				"avg_ms", snap.AvgMs, "p50_ms", snap.P50Ms, "p95_ms", snap.P95Ms, "p99_ms", snap.P99Ms)
		}
	}
	if err := errors.Join(runErr, closeErr); err != nil {
		return err
	}
	if cfg.OutputJSON {
		log.Info("wrote json output", "path", cfg.OutputPath())
	}
	if cfg.OutputSQLite {
		log.Info("wrote sqlite output", "path", cfg.SQLitePath, "driver", sink.DriverName)
	}
	return nil
}

func newSource(cfg config.Config, log *slog.Logger) (source.Source, func()) {
	if cfg.Source == config.SourceDirectory {
		return source.NewDirectory(cfg.DirectoryConfig(), log), func() {}
	}
	client := confluence.NewClient(cfg.ConfluenceClientConfig(), log)
	return confluence.NewSource(client, cfg.ConfluenceSourceConfig(), log), client.Close
}

func newSink(ctx context.Context, cfg config.Config) (sink.Sink, error) {
	var sinks []sink.Sink
	if cfg.OutputJSON {
		j, err := sink.NewJSON(cfg.OutputPath(), sink.JSONOptions{IncludeBlocks: cfg.IncludeBlocksInOutput})
		if err != nil {
			return nil, fmt.Errorf("open json output: %w", err)
		}
		sinks = append(sinks, j)
	}
	if cfg.OutputSQLite {
		db, err := sink.NewSQLite(ctx, cfg.SQLitePath, cfg.IncludeBlocksInOutput)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close(ctx, sink.Summary{})
			}
			return nil, fmt.Errorf("open sqlite output: %w", err)
		}
		sinks = append(sinks, db)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sink.NewComposite(sinks...), nil
}
