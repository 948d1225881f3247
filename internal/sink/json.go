package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
)

// JSONOptions controls what the JSON sink writes besides chunks.
type JSONOptions struct {
	IncludeBlocks bool
}

// JSON streams a single document of the form
//
//	{"chunks":[...],"pages":[...],"blocks":[...],"metadata":{...}}
//
// Chunks go straight to the output file as pages complete. Page and block
// records are spooled to sidecar files next to it and appended on Close,
// so memory use stays bounded by one page.
type JSON struct {
	mu     sync.Mutex
	path   string
	opts   JSONOptions
	f      *os.File
	w      *bufio.Writer
	chunks int
	pages  *sidecar
	blocks *sidecar
	closed bool
}

type pageRecord struct {
	page.Page
	ChunkCount int `json:"chunk_count"`
	BlockCount int `json:"block_count"`
}

type blockRecord struct {
	PageID string `json:"page_id"`
	page.Block
}

type jsonMetadata struct {
	GeneratedAt   time.Time `json:"generated_at"`
	TotalPages    int       `json:"total_pages"`
	FailedPages   int       `json:"failed_pages"`
	EmptyPages    int       `json:"empty_pages"`
	TotalChunks   int       `json:"total_chunks"`
	TotalBlocks   int       `json:"total_blocks"`
	TotalTokens   int       `json:"total_tokens"`
	DurationMs    int64     `json:"duration_ms"`
	IncludeBlocks bool      `json:"include_blocks"`
	Settings      Settings  `json:"settings"`
}

// NewJSON creates path (and its directory) and writes the document header.
func NewJSON(path string, opts JSONOptions) (*JSON, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	s := &JSON{path: path, opts: opts, f: f, w: bufio.NewWriter(f)}

	if s.pages, err = newSidecar(dir, "pages"); err != nil {
		f.Close()
		return nil, err
	}
	if opts.IncludeBlocks {
		if s.blocks, err = newSidecar(dir, "blocks"); err != nil {
			s.pages.remove()
			f.Close()
			return nil, err
		}
	}
	if _, err := s.w.WriteString(`{"chunks":[`); err != nil {
		s.discard()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return s, nil
}

// Path returns the output file path.
func (s *JSON) Path() string { return s.path }

func (s *JSON) WritePage(ctx context.Context, p page.Page, blocks []page.Block, chunks []page.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("json sink closed")
	}

	for i := range chunks {
		data, err := json.Marshal(&chunks[i])
		if err != nil {
			return fmt.Errorf("marshal chunk %s: %w", chunks[i].ChunkID, err)
		}
		if s.chunks > 0 {
			s.w.WriteByte(',')
		}
		if _, err := s.w.Write(data); err != nil {
			return fmt.Errorf("write chunk %s: %w", chunks[i].ChunkID, err)
		}
		s.chunks++
	}

	if err := s.pages.add(pageRecord{Page: p, ChunkCount: len(chunks), BlockCount: len(blocks)}); err != nil {
		return err
	}
	if s.blocks != nil {
		for _, b := range blocks {
			if err := s.blocks.add(blockRecord{PageID: p.ID, Block: b}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close appends the spooled records and the run metadata, then removes
// the sidecar files. Closing twice is a no-op.
func (s *JSON) Close(ctx context.Context, summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.discardSidecars()

	s.w.WriteString(`],"pages":[`)
	if err := s.pages.copyTo(s.w); err != nil {
		s.f.Close()
		return err
	}
	s.w.WriteString(`],"blocks":[`)
	if s.blocks != nil {
		if err := s.blocks.copyTo(s.w); err != nil {
			s.f.Close()
			return err
		}
	}
	s.w.WriteString(`],"metadata":`)

	meta, err := json.Marshal(jsonMetadata{
		GeneratedAt:   time.Now().UTC(),
		TotalPages:    summary.Pages,
		FailedPages:   summary.Failed,
		EmptyPages:    summary.Empty,
		TotalChunks:   summary.Chunks,
		TotalBlocks:   summary.Blocks,
		TotalTokens:   summary.Tokens,
		DurationMs:    summary.Duration.Milliseconds(),
		IncludeBlocks: s.opts.IncludeBlocks,
		Settings:      summary.Settings,
	})
	if err != nil {
		s.f.Close()
		return fmt.Errorf("marshal metadata: %w", err)
	}
	s.w.Write(meta)
	s.w.WriteString("}\n")

	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return s.f.Close()
}

func (s *JSON) discard() {
	s.discardSidecars()
	s.f.Close()
}

func (s *JSON) discardSidecars() {
	s.pages.remove()
	if s.blocks != nil {
		s.blocks.remove()
	}
}

// sidecar is a temp file of comma-separated JSON values.
type sidecar struct {
	f *os.File
	w *bufio.Writer
	n int
}

func newSidecar(dir, name string) (*sidecar, error) {
	f, err := os.CreateTemp(dir, "."+name+"-*.part")
	if err != nil {
		return nil, fmt.Errorf("create %s sidecar: %w", name, err)
	}
	return &sidecar{f: f, w: bufio.NewWriter(f)}, nil
}

func (sc *sidecar) add(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if sc.n > 0 {
		sc.w.WriteByte(',')
	}
	if _, err := sc.w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", sc.f.Name(), err)
	}
	sc.n++
	return nil
}

func (sc *sidecar) copyTo(w io.Writer) error {
	if err := sc.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", sc.f.Name(), err)
	}
	if _, err := sc.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", sc.f.Name(), err)
	}
	if _, err := io.Copy(w, sc.f); err != nil {
		return fmt.Errorf("copy %s: %w", sc.f.Name(), err)
	}
	return nil
}

func (sc *sidecar) remove() {
	sc.f.Close()
	os.Remove(sc.f.Name())
}
