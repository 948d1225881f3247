// Package sink persists finished chunks, one page at a time.
package sink

//go:generate mockgen -source=sink.go -destination=mocks/mock_sink.go -package=mocks

import (
	"context"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
)

// Sink receives each page's blocks and chunks as the page completes.
// Implementations may wrap one page in one transaction and must not
// assume chunks span pages.
type Sink interface {
	WritePage(ctx context.Context, p page.Page, blocks []page.Block, chunks []page.Chunk) error
	Close(ctx context.Context, summary Summary) error
}

// Summary describes a finished run.
type Summary struct {
	Pages    int // pages written to the sink
	Failed   int // pages whose fetch or extraction failed
	Empty    int // pages with no extractable text
	Chunks   int
	Blocks   int
	Tokens   int
	Duration time.Duration
	Settings Settings
}

// Settings records the chunking configuration a run used.
type Settings struct {
	ChunkSize        int    `json:"chunk_size"`
	ChunkOverlap     int    `json:"chunk_overlap"`
	Strategy         string `json:"chunking_strategy"`
	MaxHeadingLevels int    `json:"max_heading_levels"`
}
