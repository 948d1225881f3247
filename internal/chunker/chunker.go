package chunker

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/pagechunk/internal/page"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize         int  // Token budget per chunk, overlap included.
	ChunkOverlap      int  // Tokens carried from the end of one chunk into the next.
	IncludePageTag    bool // Prefix embedding text with "[PAGE] <title>".
	IncludeSectionTag bool // Prefix embedding text with "[SECTION] a > b".
	// ForwardOverlap also carries up to ChunkOverlap tokens from the start
	// of the next chunk onto the end of each chunk, and reserves room for
	// them while packing.
	ForwardOverlap bool
	// ReserveTagTokens counts the [PAGE]/[SECTION]/[TEXT] prefix against
	// ChunkSize so that EmbeddingText fits the budget too.
	ReserveTagTokens bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:         512,
		ChunkOverlap:      0,
		IncludePageTag:    true,
		IncludeSectionTag: true,
	}
}

// ErrNoBlocks is wrapped by Build when a page has nothing to chunk.
var ErrNoBlocks = errors.New("page has no blocks")

// ChunkBuilderError reports an unusable configuration or page.
type ChunkBuilderError struct {
	PageID string
	Reason string
	Err    error
}

func (e *ChunkBuilderError) Error() string {
	msg := "build chunks"
	if e.PageID != "" {
		msg += " for page " + e.PageID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChunkBuilderError) Unwrap() error { return e.Err }

// Builder assembles one page's blocks into chunks. It holds no per-page
// state and may be shared across goroutines.
type Builder struct {
	cfg    Config
	metric Metric
}

// New validates cfg. A nil metric means Approximate.
func New(cfg Config, metric Metric) (*Builder, error) {
	switch {
	case cfg.ChunkSize <= 0:
		return nil, &ChunkBuilderError{Reason: fmt.Sprintf("chunk size must be positive, got %d", cfg.ChunkSize)}
	case cfg.ChunkOverlap < 0:
		return nil, &ChunkBuilderError{Reason: fmt.Sprintf("chunk overlap must not be negative, got %d", cfg.ChunkOverlap)}
	case cfg.ChunkOverlap >= cfg.ChunkSize:
		return nil, &ChunkBuilderError{Reason: fmt.Sprintf("chunk overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)}
	case cfg.ForwardOverlap && 2*cfg.ChunkOverlap >= cfg.ChunkSize:
		return nil, &ChunkBuilderError{Reason: fmt.Sprintf("forward overlap needs chunk size %d above twice the overlap %d", cfg.ChunkSize, cfg.ChunkOverlap)}
	}
	if metric == nil {
		metric = Approximate{}
	}
	return &Builder{cfg: cfg, metric: metric}, nil
}

func (b *Builder) Config() Config { return b.cfg }

func (b *Builder) Metric() Metric { return b.metric }

// segment is a block, or one part of a block too large for a chunk.
type segment struct {
	block   int // position in the blocks slice
	text    string
	offset  int // page-relative code points
	length  int
	partial bool
}

// wordRef is one word of carried overlap, the block it came from and its
// page-relative offset.
type wordRef struct {
	text   string
	block  int
	offset int
}

// window is the primary content of one chunk and the overlap carried in
// from the previous chunk.
type window struct {
	segs    []segment
	overlap []wordRef
}

// Build returns the page's chunks in document order. Every block lands in
// the primary range of exactly one chunk, except a block larger than the
// budget, whose parts each get a chunk of their own.
func (b *Builder) Build(meta page.Page, blocks []page.Block) ([]page.Chunk, error) {
	segs := b.segments(meta, blocks)
	if len(segs) == 0 {
		return nil, &ChunkBuilderError{PageID: meta.ID, Reason: "nothing to chunk", Err: ErrNoBlocks}
	}

	var (
		wins []window
		win  []segment
		tail []wordRef
		over []wordRef
	)
	for i := 0; i < len(segs); {
		s := segs[i]
		if len(win) == 0 {
			over = b.fitOverlap(meta, blocks, tail, s)
			win = append(win, s)
			i++
			continue
		}
		// Parts of a split block never share a chunk with other content.
		if !s.partial && !win[0].partial {
			if b.fits(meta, blocks, over, win, s) {
				win = append(win, s)
				i++
				continue
			}
			if cut := b.headingCut(blocks, win); cut > 0 {
				i -= len(win) - cut
				win = win[:cut]
			}
		}
		wins = append(wins, window{segs: win, overlap: over})
		tail = b.tail(win)
		win = nil
	}
	wins = append(wins, window{segs: win, overlap: over})

	chunks := make([]page.Chunk, len(wins))
	for i, w := range wins {
		var next []segment
		if i+1 < len(wins) {
			next = wins[i+1].segs
		}
		chunks[i] = b.chunk(meta, blocks, w, next, i)
	}
	return chunks, nil
}

// reserve is the room kept free for forward overlap while packing.
func (b *Builder) reserve() int {
	if b.cfg.ForwardOverlap {
		return b.cfg.ChunkOverlap
	}
	return 0
}

// cost is the number of budget tokens text uses in a chunk whose first
// primary block is first.
func (b *Builder) cost(meta page.Page, first page.Block, text string) int {
	if b.cfg.ReserveTagTokens {
		return b.metric.Count(b.embeddingText(meta.Title, first.HeadingPath, text))
	}
	return b.metric.Count(text)
}

func (b *Builder) segments(meta page.Page, blocks []page.Block) []segment {
	var segs []segment
	for i, bl := range blocks {
		if bl.Text == "" {
			continue
		}
		if b.cost(meta, bl, bl.Text) <= b.cfg.ChunkSize {
			segs = append(segs, segment{block: i, text: bl.Text, offset: bl.CharOffset, length: bl.CharLength})
			continue
		}
		// Parts are sized so both overlaps and the tags still fit around them.
		size := b.cfg.ChunkSize - b.cfg.ChunkOverlap - b.reserve() - b.cost(meta, bl, "")
		size = max(size, b.cfg.ChunkSize/4, 1)
		text := bl.Text
		pos, off := 0, bl.CharOffset
		for _, p := range b.metric.Split(text, size) {
			n := utf8.RuneCountInString(p)
			segs = append(segs, segment{block: i, text: p, offset: off, length: n, partial: true})
			pos += len(p)
			off += n
			if pos < len(text) && text[pos] == ' ' {
				pos++
				off++
			}
		}
	}
	return segs
}

func (b *Builder) fits(meta page.Page, blocks []page.Block, overlap []wordRef, win []segment, next segment) bool {
	text := joinTexts(joinWords(overlap), primaryText(win)+" "+next.text)
	return b.cost(meta, blocks[win[0].block], text)+b.reserve() <= b.cfg.ChunkSize
}

// headingCut returns the window position of the last heading worth
// closing before, or 0. Closing there must keep at least half the budget
// in the current chunk.
func (b *Builder) headingCut(blocks []page.Block, win []segment) int {
	for k := len(win) - 1; k > 0; k-- {
		s := win[k]
		if blocks[s.block].Type != page.BlockHeading || win[k-1].block == s.block {
			continue
		}
		if 2*b.metric.Count(primaryText(win[:k])) >= b.cfg.ChunkSize {
			return k
		}
		return 0
	}
	return 0
}

// tail returns the trailing words of the window whose token count is the
// largest not exceeding ChunkOverlap. It never carries the whole window.
func (b *Builder) tail(win []segment) []wordRef {
	if b.cfg.ChunkOverlap == 0 {
		return nil
	}
	words := splitWords(win)
	// Every word counts at least one token.
	hi := min(len(words)-1, b.cfg.ChunkOverlap)
	n := sort.Search(hi, func(j int) bool {
		return b.metric.Count(joinWords(words[len(words)-j-1:])) > b.cfg.ChunkOverlap
	})
	return words[len(words)-n:]
}

// fitOverlap drops the fewest leading overlap words that let the overlap
// and the next chunk's first segment fit the budget together. When the
// segment alone leaves no room the overlap is dropped entirely.
func (b *Builder) fitOverlap(meta page.Page, blocks []page.Block, tail []wordRef, first segment) []wordRef {
	if len(tail) == 0 {
		return nil
	}
	fb := blocks[first.block]
	d := sort.Search(len(tail), func(d int) bool {
		return b.cost(meta, fb, joinWords(tail[d:])+" "+first.text)+b.reserve() <= b.cfg.ChunkSize
	})
	return tail[d:]
}

// lead returns the leading words of next that fit both ChunkOverlap and
// the room left after text in the current chunk.
func (b *Builder) lead(meta page.Page, first page.Block, text string, next []segment) []wordRef {
	if !b.cfg.ForwardOverlap || b.cfg.ChunkOverlap == 0 || len(next) == 0 {
		return nil
	}
	words := splitWords(next)
	hi := min(len(words), b.cfg.ChunkOverlap)
	n := sort.Search(hi, func(j int) bool {
		ahead := joinWords(words[:j+1])
		return b.metric.Count(ahead) > b.cfg.ChunkOverlap ||
			b.cost(meta, first, text+" "+ahead) > b.cfg.ChunkSize
	})
	return words[:n]
}

func (b *Builder) chunk(meta page.Page, blocks []page.Block, w window, next []segment, idx int) page.Chunk {
	win := w.segs
	first := blocks[win[0].block]
	last := blocks[win[len(win)-1].block]
	primary := primaryText(win)
	overlapText := joinWords(w.overlap)
	ahead := b.lead(meta, first, joinTexts(overlapText, primary), next)
	aheadText := joinWords(ahead)
	full := joinTexts(overlapText, primary, aheadText)

	offStart := win[0].offset
	offEnd := win[len(win)-1].offset + win[len(win)-1].length

	c := page.Chunk{
		ChunkID:      fmt.Sprintf("%s:%d-%d", meta.ID, first.Index, last.Index),
		ChunkIndex:   idx,
		PageID:       meta.ID,
		PageTitle:    meta.Title,
		SpaceKey:     meta.SpaceKey,
		PageVersion:  meta.Version,
		LastModified: meta.LastModified,
		PageURL:      meta.URL,

		BlockRange:        page.BlockRange{Start: first.Index, End: last.Index},
		OverlapBlocks:     blockIndices(blocks, w.overlap, nil),
		OverlapNextBlocks: blockIndices(blocks, ahead, win),
		Split:             win[0].partial,

		NormalizedText:  primary,
		OverlapText:     overlapText,
		OverlapNextText: aheadText,
		FullText:        full,

		TextHeadingHierarchy: copyPath(first.HeadingPath),
		FullHeadingHierarchy: copyPath(first.FullHeadingPath),
		NearestHeadingID:     first.NearestHeadingID,

		TokenCount: b.metric.Count(full),
	}
	if c.Split {
		c.ChunkID += fmt.Sprintf("@%d-%d", offStart, offEnd)
	}
	c.EmbeddingText = b.embeddingText(meta.Title, c.TextHeadingHierarchy, full)
	c.Navigation.TextOffsetStart = offStart
	c.Navigation.TextLength = offEnd - offStart

	hl := &c.Navigation.Highlight
	for _, s := range win {
		hl.CoreFragments = append(hl.CoreFragments, fragment(blocks[s.block], s.text, s.offset, s.length))
	}
	hl.OverlapPrevFragments = wordFragments(blocks, w.overlap)
	hl.OverlapNextFragments = wordFragments(blocks, ahead)
	return c
}

func (b *Builder) embeddingText(title string, headings []string, text string) string {
	var lines []string
	if b.cfg.IncludePageTag && title != "" {
		lines = append(lines, "[PAGE] "+title)
	}
	if b.cfg.IncludeSectionTag && len(headings) > 0 {
		lines = append(lines, "[SECTION] "+strings.Join(headings, " > "))
	}
	if len(lines) == 0 {
		return text
	}
	lines = append(lines, "[TEXT] "+text)
	return strings.Join(lines, "\n")
}

func primaryText(win []segment) string {
	parts := make([]string, len(win))
	for i, s := range win {
		parts[i] = s.text
	}
	return strings.Join(parts, " ")
}

// joinTexts joins the non-empty texts with single spaces.
func joinTexts(texts ...string) string {
	var parts []string
	for _, t := range texts {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// splitWords lists the words of segs in order, with their offsets.
func splitWords(segs []segment) []wordRef {
	var out []wordRef
	for _, s := range segs {
		off := s.offset
		for _, w := range strings.Split(s.text, " ") {
			out = append(out, wordRef{text: w, block: s.block, offset: off})
			off += utf8.RuneCountInString(w) + 1
		}
	}
	return out
}

func joinWords(words []wordRef) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}

// blockIndices returns the distinct block indices of words in order,
// leaving out blocks that are primary content of skip.
func blockIndices(blocks []page.Block, words []wordRef, skip []segment) []int {
	var out []int
	for _, w := range words {
		if slices.ContainsFunc(skip, func(s segment) bool { return s.block == w.block }) {
			continue
		}
		idx := blocks[w.block].Index
		if len(out) == 0 || out[len(out)-1] != idx {
			out = append(out, idx)
		}
	}
	return out
}

func fragment(bl page.Block, text string, offset, length int) page.Fragment {
	return page.Fragment{
		BlockIndex: bl.Index,
		BlockType:  bl.Type,
		HTMLID:     bl.HTMLID,
		Text:       text,
		TextOffset: offset,
		TextLength: length,
	}
}

// wordFragments groups words into one fragment per run of adjacent words
// of the same block.
func wordFragments(blocks []page.Block, words []wordRef) []page.Fragment {
	var out []page.Fragment
	for i := 0; i < len(words); {
		j := i
		for j+1 < len(words) && words[j+1].block == words[i].block &&
			words[j+1].offset == words[j].offset+utf8.RuneCountInString(words[j].text)+1 {
			j++
		}
		end := words[j].offset + utf8.RuneCountInString(words[j].text)
		out = append(out, fragment(blocks[words[i].block], joinWords(words[i:j+1]), words[i].offset, end-words[i].offset))
		i = j + 1
	}
	return out
}

func copyPath(p []string) []string {
	out := make([]string, len(p))
	copy(out, p)
	return out
}
