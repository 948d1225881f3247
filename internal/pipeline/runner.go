package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/dgallion1/pagechunk/internal/source"
	"golang.org/x/sync/errgroup"
)

// RunnerConfig sizes the batch run loop.
type RunnerConfig struct {
	Workers   int
	QueueSize int
	Settings  sink.Settings
}

// Runner drives one batch: a source feeds a bounded page queue, workers
// process pages in parallel and a single writer hands each result to the
// sink in completion order.
type Runner struct {
	proc    *Processor
	cfg     RunnerConfig
	log     *slog.Logger
	latency *LatencyStats
}

func NewRunner(proc *Processor, cfg RunnerConfig, latency *LatencyStats, log *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers
	}
	if latency == nil {
		latency = NewLatencyStats(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{proc: proc, cfg: cfg, log: log, latency: latency}
}

// Run streams every page of src through the processor into snk and
// returns the run summary. Pages that fail extraction or chunking are
// logged and counted; a sink error stops the run. Run does not close snk.
func (r *Runner) Run(ctx context.Context, src source.Source, snk sink.Sink) (sink.Summary, error) {
	start := time.Now()
	var stats Stats

	g, gctx := errgroup.WithContext(ctx)
	pages := make(chan page.Page, r.cfg.QueueSize)
	results := make(chan Result, r.cfg.QueueSize)

	g.Go(func() error {
		defer close(pages)
		if err := src.Stream(gctx, pages); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		return nil
	})

	var workers sync.WaitGroup
	for range r.cfg.Workers {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for p := range pages {
				res, ok := r.process(p, &stats)
				if !ok {
					continue
				}
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		for res := range results {
			began := time.Now()
			if err := snk.WritePage(gctx, res.Page, res.Blocks, res.Chunks); err != nil {
				return fmt.Errorf("write page %s: %w", res.Page.ID, err)
			}
			r.latency.Record(StageWrite, time.Since(began))
			stats.AddPage(res)
			r.log.Debug("page written", "page_id", res.Page.ID, "chunks", len(res.Chunks), "tokens", res.Tokens)
		}
		return nil
	})

	err := g.Wait()
	if fc, ok := src.(source.FailureCounter); ok {
		stats.AddFailed(fc.Failed())
	}

	c := stats.Snapshot()
	summary := sink.Summary{
		Pages:    c.Pages,
		Failed:   c.Failed,
		Empty:    c.Empty,
		Chunks:   c.Chunks,
		Blocks:   c.Blocks,
		Tokens:   c.Tokens,
		Duration: time.Since(start),
		Settings: r.cfg.Settings,
	}
	r.log.Info("run finished", "pages", summary.Pages, "failed", summary.Failed, "empty", summary.Empty,
		"chunks", summary.Chunks, "tokens", summary.Tokens, "duration", summary.Duration)
	return summary, err
}

// process runs one page and classifies failures. It reports false when
// the page produced nothing to write.
func (r *Runner) process(p page.Page, stats *Stats) (Result, bool) {
	res, err := r.proc.Process(p)
	r.latency.Record(StageExtract, res.ExtractTime)
	if res.ChunkTime > 0 {
		r.latency.Record(StageChunk, res.ChunkTime)
	}

	log := r.log.With("page_id", p.ID)
	switch {
	case err == nil:
		return res, true
	case errors.Is(err, chunker.ErrNoBlocks):
		stats.AddEmpty()
		log.Warn("page has no extractable text, skipping")
	default:
		stats.AddFailed(1)
		log.Error("process page failed, skipping", "error", err)
	}
	return Result{}, false
}
