package page

import "strings"

// Page is one source document as delivered by a page source.
type Page struct {
	ID           string `json:"page_id"`
	Title        string `json:"title"`
	SpaceKey     string `json:"space_key,omitempty"`
	SpaceName    string `json:"space_name,omitempty"`
	Version      int    `json:"version"`
	LastModified string `json:"last_modified,omitempty"`
	URL          string `json:"url,omitempty"`
	HTML         string `json:"-"`
}

// BlockType is the content category of a block.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockListItem  BlockType = "list_item"
	BlockTableCell BlockType = "table_cell"
	BlockQuote     BlockType = "quote"
	BlockCode      BlockType = "code"
)

// PathStep is one level of a block's ancestry: the element tag and its
// 1-based position among preceding siblings with the same tag.
type PathStep struct {
	Tag     string   `json:"tag"`
	Index   int      `json:"index"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
}

// Block is the smallest extracted content unit of a page.
type Block struct {
	Index            int        `json:"index"`
	Type             BlockType  `json:"block_type"`
	Text             string     `json:"text"`
	HeadingLevel     int        `json:"heading_level,omitempty"`
	HeadingPath      []string   `json:"heading_path"`
	FullHeadingPath  []string   `json:"full_heading_path,omitempty"`
	CharOffset       int        `json:"char_offset"`
	CharLength       int        `json:"char_length"`
	LocatorPath      []PathStep `json:"locator_path"`
	HTMLID           string     `json:"html_id,omitempty"`
	NearestHeadingID string     `json:"nearest_heading_id,omitempty"`
}

// BlockRange is an inclusive range of block indices.
type BlockRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() int { return r.End - r.Start + 1 }

// Fragment is a contiguous run of one block's text used by a chunk.
// TextOffset and TextLength are page-relative code points.
type Fragment struct {
	BlockIndex int       `json:"block_index"`
	BlockType  BlockType `json:"block_type"`
	HTMLID     string    `json:"html_id,omitempty"`
	Text       string    `json:"text"`
	TextOffset int       `json:"text_offset"`
	TextLength int       `json:"text_length"`
}

// Highlight is a compact fallback payload for clients that cannot follow
// the text anchor in Navigation.URL.
type Highlight struct {
	TextFragment     string    `json:"text_fragment"`
	BlockType        BlockType `json:"block_type"`
	TextOffset       int       `json:"text_offset"`
	FirstBlockHTMLID string    `json:"first_block_html_id,omitempty"`
	NearestHeadingID string    `json:"nearest_heading_html_id,omitempty"`

	CoreFragments        []Fragment `json:"core_fragments,omitempty"`
	OverlapPrevFragments []Fragment `json:"overlap_prev_fragments,omitempty"`
	OverlapNextFragments []Fragment `json:"overlap_next_fragments,omitempty"`
}

// Navigation is the locator suite for one chunk.
type Navigation struct {
	URL              string    `json:"url"`
	LocatorPathStart string    `json:"locator_path_start"`
	SelectorStart    string    `json:"selector_start"`
	TextOffsetStart  int       `json:"text_offset_start"`
	TextLength       int       `json:"text_length"`
	Highlight        Highlight `json:"highlight_metadata"`
}

// Chunk is a retrieval unit spanning one or more blocks of a page.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`

	PageID       string `json:"page_id"`
	PageTitle    string `json:"page_title"`
	SpaceKey     string `json:"space_key,omitempty"`
	PageVersion  int    `json:"page_version"`
	LastModified string `json:"last_modified,omitempty"`
	PageURL      string `json:"page_url,omitempty"`

	BlockRange        BlockRange `json:"block_range"`
	OverlapBlocks     []int      `json:"overlap_blocks,omitempty"`
	OverlapNextBlocks []int      `json:"overlap_next_blocks,omitempty"`
	Split             bool       `json:"split,omitempty"`

	NormalizedText  string `json:"normalized_text"`
	OverlapText     string `json:"overlap_prev_text,omitempty"`
	OverlapNextText string `json:"overlap_next_text,omitempty"`
	FullText        string `json:"full_text"`
	EmbeddingText   string `json:"embedding_text"`

	TextHeadingHierarchy []string `json:"text_heading_hierarchy"`
	FullHeadingHierarchy []string `json:"full_heading_hierarchy,omitempty"`
	NearestHeadingID     string   `json:"nearest_heading_id,omitempty"`

	TokenCount int        `json:"token_count"`
	Navigation Navigation `json:"navigation"`
}

// Text returns the page's normalized text: every block's text in index
// order with no separator, matching the CharOffset/CharLength spans.
func Text(blocks []Block) string {
	var b strings.Builder
	for _, bl := range blocks {
		b.WriteString(bl.Text)
	}
	return b.String()
}
