package pipeline

import (
	"sort"
	"sync"
	"time"
)

// Counters is a point-in-time copy of page and chunk totals.
type Counters struct {
	Pages  int `json:"pages"`
	Failed int `json:"failed_pages"`
	Empty  int `json:"empty_pages"`
	Chunks int `json:"chunks"`
	Blocks int `json:"blocks"`
	Tokens int `json:"tokens"`
}

// Stats accumulates Counters across concurrent workers.
type Stats struct {
	mu sync.Mutex
	c  Counters
}

func (s *Stats) AddPage(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Pages++
	s.c.Chunks += len(res.Chunks)
	s.c.Blocks += len(res.Blocks)
	s.c.Tokens += res.Tokens
}

func (s *Stats) AddFailed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Failed += n
}

func (s *Stats) AddEmpty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Empty++
}

func (s *Stats) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Latency stages recorded by the runner and orchestrator.
const (
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageWrite   = "write"
)

type sample struct {
	timestamp  time.Time
	durationMs float64
}

// LatencySnapshot aggregates one stage's samples.
type LatencySnapshot struct {
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// LatencyStats tracks per-stage durations within a rolling window.
type LatencyStats struct {
	mu     sync.Mutex
	stages map[string][]sample
	maxAge time.Duration
	now    func() time.Time
}

func NewLatencyStats(maxAge time.Duration) *LatencyStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LatencyStats{
		stages: make(map[string][]sample),
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (s *LatencyStats) Record(stage string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	samples := prune(s.stages[stage], now.Add(-s.maxAge))
	s.stages[stage] = append(samples, sample{
		timestamp:  now,
		durationMs: float64(d) / float64(time.Millisecond),
	})
}

// Snapshot returns the aggregates of every stage with samples in the window.
func (s *LatencyStats) Snapshot() map[string]LatencySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.maxAge)
	out := make(map[string]LatencySnapshot, len(s.stages))
	for stage, samples := range s.stages {
		samples = prune(samples, cutoff)
		s.stages[stage] = samples
		if len(samples) > 0 {
			out[stage] = summarize(samples)
		}
	}
	return out
}

func summarize(samples []sample) LatencySnapshot {
	values := make([]float64, len(samples))
	var sum float64
	for i, sm := range samples {
		values[i] = sm.durationMs
		sum += sm.durationMs
	}
	sort.Float64s(values)

	return LatencySnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: sum / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func prune(samples []sample, cutoff time.Time) []sample {
	keep := samples[:0]
	for _, sm := range samples {
		if !sm.timestamp.Before(cutoff) {
			keep = append(keep, sm)
		}
	}
	return keep
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}
	index := float64(len(sorted)-1) * pct / 100.0
	lower := int(index)
	if lower+1 >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower] + (sorted[lower+1]-sorted[lower])*weight
}
