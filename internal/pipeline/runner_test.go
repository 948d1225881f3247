package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/dgallion1/pagechunk/internal/sink/mocks"
	"github.com/dgallion1/pagechunk/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// flakySource streams its pages and reports a fixed number of skipped ones.
type flakySource struct {
	source.Static
	skipped int
}

func (f flakySource) Failed() int { return f.skipped }

func TestRunner_CountsAndWrites(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	snk := mocks.NewMockSink(ctrl)
	var (
		mu      sync.Mutex
		written []string
	)
	snk.EXPECT().
		WritePage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p page.Page, blocks []page.Block, chunks []page.Chunk) error {
			mu.Lock()
			defer mu.Unlock()
			written = append(written, p.ID)
			return nil
		}).
		Times(2)

	src := flakySource{
		Static: source.Static{
			{ID: "good", HTML: guideHTML},
			{ID: "empty", HTML: "<div></div>"},
			{ID: "bad", HTML: "<p>\xff</p>"},
			{ID: "also-good", HTML: "<p>Second page.</p>"},
		},
		skipped: 2,
	}

	settings := sink.Settings{ChunkSize: 512, Strategy: "approximate", MaxHeadingLevels: 2}
	r := NewRunner(newProcessor(t, chunker.DefaultConfig()), RunnerConfig{Workers: 3, QueueSize: 2, Settings: settings}, nil, nil)
	summary, err := r.Run(context.Background(), src, snk)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"good", "also-good"}, written)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 3, summary.Failed, "one bad page plus two skipped by the source")
	assert.Equal(t, 1, summary.Empty)
	assert.Equal(t, 2, summary.Chunks)
	assert.Equal(t, 6, summary.Blocks)
	assert.Equal(t, settings, summary.Settings)
	assert.Positive(t, summary.Tokens)
}

func TestRunner_SinkErrorStopsRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	boom := errors.New("disk full")
	snk := mocks.NewMockSink(ctrl)
	snk.EXPECT().WritePage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(boom).Times(1)

	var pages source.Static
	for i := 0; i < 50; i++ {
		pages = append(pages, page.Page{ID: fmt.Sprintf("p%d", i), HTML: "<p>text</p>"})
	}

	r := NewRunner(newProcessor(t, chunker.DefaultConfig()), RunnerConfig{Workers: 2, QueueSize: 1}, nil, nil)
	summary, err := r.Run(context.Background(), pages, snk)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Zero(t, summary.Pages)
}

func TestRunner_RecordsLatency(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	snk := mocks.NewMockSink(ctrl)
	snk.EXPECT().WritePage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(3)

	latency := NewLatencyStats(0)
	r := NewRunner(newProcessor(t, chunker.DefaultConfig()), RunnerConfig{Workers: 1}, latency, nil)
	_, err := r.Run(context.Background(), source.Static{
		{ID: "a", HTML: "<p>a</p>"}, {ID: "b", HTML: "<p>b</p>"}, {ID: "c", HTML: "<p>c</p>"},
	}, snk)
	require.NoError(t, err)

	snaps := latency.Snapshot()
	assert.Equal(t, 3, snaps[StageExtract].Count)
	assert.Equal(t, 3, snaps[StageWrite].Count)
}

func TestOrchestrator_IngestsAndSkipsDuplicates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	written := make(chan string, 4)
	snk := mocks.NewMockSink(ctrl)
	snk.EXPECT().
		WritePage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p page.Page, _ []page.Block, _ []page.Chunk) error {
			written <- p.ID
			return nil
		}).
		Times(1)

	o := NewOrchestrator(OrchestratorConfig{Workers: 1, QueueSize: 4}, newProcessor(t, chunker.DefaultConfig()), snk, nil, nil, discardLogger())
	o.Start(context.Background())

	first := NewJob(page.Page{ID: "p1", HTML: guideHTML}, "")
	require.NoError(t, o.Submit(first))
	assert.Equal(t, "p1", <-written)
	waitForStatus(t, first, StatusCompleted)

	again := NewJob(page.Page{ID: "p1", HTML: guideHTML}, "")
	require.NoError(t, o.Submit(again))
	waitForStatus(t, again, StatusDupSkipped)

	empty := NewJob(page.Page{ID: "p2", HTML: "<p> </p>"}, "")
	require.NoError(t, o.Submit(empty))
	waitForStatus(t, empty, StatusEmpty)

	o.Stop()

	snap := first.Snapshot()
	assert.Equal(t, []string{"p1:0-4"}, snap.ChunkIDs)
	assert.Equal(t, 5, snap.Progress.Blocks)
	assert.Equal(t, 1, o.Stats().Pages)
	assert.Equal(t, 1, o.Stats().Empty)
	assert.Same(t, first, o.GetJob(first.ID))
}

func TestOrchestrator_QueueFull(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	o := NewOrchestrator(OrchestratorConfig{Workers: 1, QueueSize: 1}, newProcessor(t, chunker.DefaultConfig()), mocks.NewMockSink(ctrl), nil, nil, discardLogger())

	require.NoError(t, o.Submit(NewJob(page.Page{ID: "a"}, "")))
	overflow := NewJob(page.Page{ID: "b"}, "")
	assert.Error(t, o.Submit(overflow))
	assert.Equal(t, StatusFailed, overflow.Snapshot().Status)
	assert.Equal(t, 1, o.QueueDepth())
}
