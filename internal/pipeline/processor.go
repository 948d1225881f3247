package pipeline

import (
	"time"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/navigate"
	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/parser"
)

// Result is one processed page.
type Result struct {
	Page   page.Page
	Blocks []page.Block
	Chunks []page.Chunk
	Tokens int

	ExtractTime time.Duration
	ChunkTime   time.Duration
}

// Processor runs extraction, chunking and navigation for one page at a
// time. It holds only configuration and is safe for concurrent use.
type Processor struct {
	extractor *parser.Extractor
	builder   *chunker.Builder
	resolver  *navigate.Resolver
}

func NewProcessor(extractor *parser.Extractor, builder *chunker.Builder, resolver *navigate.Resolver) *Processor {
	return &Processor{extractor: extractor, builder: builder, resolver: resolver}
}

// BuildProcessor assembles a processor from its stage configurations.
func BuildProcessor(ex parser.ExtractorConfig, ch chunker.Config, metric chunker.Metric, nav navigate.ResolverConfig) (*Processor, error) {
	b, err := chunker.New(ch, metric)
	if err != nil {
		return nil, err
	}
	return NewProcessor(parser.NewExtractor(ex), b, navigate.NewResolver(nav)), nil
}

// WithChunkConfig returns a processor sharing the extractor, resolver and
// token metric but chunking with cfg.
func (p *Processor) WithChunkConfig(cfg chunker.Config) (*Processor, error) {
	b, err := chunker.New(cfg, p.builder.Metric())
	if err != nil {
		return nil, err
	}
	return &Processor{extractor: p.extractor, builder: b, resolver: p.resolver}, nil
}

// ChunkConfig returns the chunking configuration in use.
func (p *Processor) ChunkConfig() chunker.Config { return p.builder.Config() }

// MetricName returns the name of the token metric in use.
func (p *Processor) MetricName() string { return p.builder.Metric().Name() }

// Process turns one page into blocks and navigable chunks. A page with
// no extractable text fails with an error wrapping chunker.ErrNoBlocks.
func (p *Processor) Process(pg page.Page) (Result, error) {
	res := Result{Page: pg}

	start := time.Now()
	blocks, err := p.extractor.Extract(pg.HTML)
	res.ExtractTime = time.Since(start)
	if err != nil {
		return res, err
	}
	res.Blocks = blocks

	start = time.Now()
	chunks, err := p.builder.Build(pg, blocks)
	if err != nil {
		res.ChunkTime = time.Since(start)
		return res, err
	}
	for i := range chunks {
		p.resolver.Resolve(&chunks[i], blocks[chunks[i].BlockRange.Start])
		res.Tokens += chunks[i].TokenCount
	}
	res.ChunkTime = time.Since(start)
	res.Chunks = chunks
	return res, nil
}
