package pipeline

import (
	"testing"
	"time"
)

func TestLatencyStatsSnapshotPercentiles(t *testing.T) {
	stats := NewLatencyStats(time.Hour)
	for _, ms := range []int{100, 200, 300, 400, 500} {
		stats.Record(StageExtract, time.Duration(ms)*time.Millisecond)
	}
	stats.Record(StageWrite, 7*time.Millisecond)

	snaps := stats.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(snaps))
	}
	snap := snaps[StageExtract]
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got min=%f max=%f", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
	if snaps[StageWrite].Count != 1 {
		t.Fatalf("expected one write sample, got %d", snaps[StageWrite].Count)
	}
}

func TestLatencyStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewLatencyStats(time.Minute)
	now := time.Now()
	stats.now = func() time.Time { return now }
	stats.Record(StageChunk, 100*time.Millisecond)

	now = now.Add(2 * time.Minute)
	if _, ok := stats.Snapshot()[StageChunk]; ok {
		t.Fatal("expected expired stage to be absent")
	}

	stats.Record(StageChunk, 200*time.Millisecond)
	snap := stats.Snapshot()[StageChunk]
	if snap.Count != 1 || snap.MinMs != 200 {
		t.Fatalf("expected one fresh sample of 200ms, got %+v", snap)
	}
}

func TestLatencyStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewLatencyStats(time.Hour)
	stats.Record(StageWrite, -10*time.Millisecond)
	snap := stats.Snapshot()[StageWrite]
	if snap.Count != 1 || snap.MaxMs != 0 {
		t.Fatalf("expected one clamped sample, got %+v", snap)
	}
}

func TestStatsCounters(t *testing.T) {
	var s Stats
	s.AddPage(Result{Tokens: 10})
	s.AddFailed(2)
	s.AddEmpty()
	c := s.Snapshot()
	if c.Pages != 1 || c.Failed != 2 || c.Empty != 1 || c.Tokens != 10 {
		t.Fatalf("unexpected counters: %+v", c)
	}
}
