package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/sink"
)

// OrchestratorConfig sizes the asynchronous ingestion pool.
type OrchestratorConfig struct {
	Workers   int
	QueueSize int
	JobTTL    time.Duration
}

// Orchestrator ingests pages submitted one at a time, typically over
// HTTP, and writes each result to its sink.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	proc    *Processor
	sink    sink.Sink
	stats   *Stats
	latency *LatencyStats
	log     *slog.Logger
	cfg     OrchestratorConfig

	// last content hash written per page id, for duplicate skipping
	hashMu sync.Mutex
	hashes map[string]string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg OrchestratorConfig, proc *Processor, snk sink.Sink, stats *Stats, latency *LatencyStats, log *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if stats == nil {
		stats = &Stats{}
	}
	if latency == nil {
		latency = NewLatencyStats(0)
	}
	return &Orchestrator{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, cfg.QueueSize),
		proc:    proc,
		sink:    snk,
		stats:   stats,
		latency: latency,
		log:     log,
		cfg:     cfg,
		hashes:  make(map[string]string),
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.Workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.QueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns the running totals of ingested pages.
func (o *Orchestrator) Stats() Counters { return o.stats.Snapshot() }

// Latency returns the per-stage latency tracker.
func (o *Orchestrator) Latency() *LatencyStats { return o.latency }

// Processor returns the default page processor.
func (o *Orchestrator) Processor() *Processor { return o.proc }

func (o *Orchestrator) process(ctx context.Context, job *Job) {
	p := job.Page()
	log := o.log.With("job_id", job.ID, "page_id", p.ID)

	if o.seen(p.ID, job.ContentHash) {
		log.Info("page unchanged since last ingest, skipping")
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	job.SetStatus(StatusProcessing, "extracting and chunking")
	res, err := o.proc.Process(p)
	o.latency.Record(StageExtract, res.ExtractTime)
	if res.ChunkTime > 0 {
		o.latency.Record(StageChunk, res.ChunkTime)
	}
	if err != nil {
		job.AddError(err.Error())
		if errors.Is(err, chunker.ErrNoBlocks) {
			o.stats.AddEmpty()
			log.Warn("page has no extractable text")
			job.SetStatus(StatusEmpty, "chunking")
			return
		}
		o.stats.AddFailed(1)
		log.Error("process page failed", "error", err)
		job.SetStatus(StatusFailed, "processing")
		return
	}
	job.SetResult(res)

	job.SetStatus(StatusWriting, "writing")
	began := time.Now()
	if err := o.sink.WritePage(ctx, res.Page, res.Blocks, res.Chunks); err != nil {
		o.stats.AddFailed(1)
		log.Error("write page failed", "error", err)
		job.AddError(fmt.Sprintf("write: %s", err))
		job.SetStatus(StatusFailed, "writing")
		return
	}
	o.latency.Record(StageWrite, time.Since(began))
	o.stats.AddPage(res)
	o.remember(p.ID, job.ContentHash)

	log.Info("page ingested", "chunks", len(res.Chunks), "tokens", res.Tokens)
	job.SetStatus(StatusCompleted, "done")
}

func (o *Orchestrator) seen(pageID, hash string) bool {
	o.hashMu.Lock()
	defer o.hashMu.Unlock()
	return o.hashes[pageID] == hash
}

func (o *Orchestrator) remember(pageID, hash string) {
	o.hashMu.Lock()
	defer o.hashMu.Unlock()
	o.hashes[pageID] = hash
}
