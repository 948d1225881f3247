package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/pagechunk/internal/page"
	"golang.org/x/net/html"
)

// DefaultBlockTags are the elements that produce blocks unless configured otherwise.
var DefaultBlockTags = []string{
	"p", "div", "blockquote", "pre",
	"ul", "ol", "li", "dl", "dt", "dd",
	"table", "th", "td",
	"h1", "h2", "h3", "h4", "h5", "h6",
	"section", "article", "figure", "figcaption",
}

// DefaultExcludedTags are skipped together with their whole subtree.
var DefaultExcludedTags = []string{
	"script", "style", "noscript", "template", "nav", "header", "footer", "hr",
}

// ExtractorConfig selects which elements become blocks.
type ExtractorConfig struct {
	AllowedTags      []string
	ExcludedTags     []string
	ExcludedClasses  []string // class prefixes
	ExcludedIDs      []string // id prefixes
	MaxHeadingLevels int
	// TableRows makes each <tr> one table_cell block with its cell texts
	// joined by " | ", instead of one block per allowed cell tag.
	TableRows bool
}

// DefaultExtractorConfig returns the stock tag sets with two heading levels.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		AllowedTags:      DefaultBlockTags,
		ExcludedTags:     DefaultExcludedTags,
		MaxHeadingLevels: 2,
	}
}

// ExtractionError reports a page whose HTML could not be turned into blocks.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract blocks: %s: %v", e.Reason, e.Err)
	}
	return "extract blocks: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns page HTML into an ordered block sequence. It holds only
// configuration and is safe for concurrent use.
type Extractor struct {
	allowed    map[string]bool
	excluded   map[string]bool
	classPfx   []string
	idPfx      []string
	maxHeading int
	tableRows  bool
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{
		allowed:    tagSet(cfg.AllowedTags),
		excluded:   tagSet(cfg.ExcludedTags),
		classPfx:   nonEmpty(cfg.ExcludedClasses),
		idPfx:      nonEmpty(cfg.ExcludedIDs),
		maxHeading: cfg.MaxHeadingLevels,
		tableRows:  cfg.TableRows,
	}
}

// Extract walks the document in order and returns its blocks. Block texts
// concatenated in index order equal page.Text(blocks), and every block's
// CharOffset is the running code-point count of the blocks before it.
func (e *Extractor) Extract(src string) ([]page.Block, error) {
	if !utf8.ValidString(src) {
		return nil, &ExtractionError{Reason: "input is not valid UTF-8"}
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, &ExtractionError{Reason: "parse html", Err: err}
	}

	w := &walker{ex: e, headings: newHeadingTracker(e.maxHeading)}
	w.walk(doc, nil, nil)
	return w.blocks, nil
}

// textRun gathers inline text owned by the nearest allowed ancestor.
type textRun struct {
	owner *html.Node
	path  []page.PathStep
	buf   strings.Builder
}

type walker struct {
	ex       *Extractor
	headings *headingTracker
	blocks   []page.Block
	cursor   int
}

func (w *walker) walk(n *html.Node, path []page.PathStep, run *textRun) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if run != nil {
				run.buf.WriteString(c.Data)
			}
		case html.ElementNode:
			if w.ex.skip(c) {
				continue
			}
			childPath := append(path[:len(path):len(path)], stepFor(c))

			if w.ex.tableRows && c.Data == "tr" {
				w.flush(run)
				w.emit(c, childPath, w.ex.rowText(c))
				continue
			}

			if w.ex.allowed[c.Data] {
				// Text gathered so far becomes its own block, so content
				// around nested blocks is kept in document order.
				w.flush(run)
				inner := &textRun{owner: c, path: childPath}
				w.walk(c, childPath, inner)
				w.flush(inner)
				continue
			}

			if run != nil && !inlineTags[c.Data] {
				run.buf.WriteByte(' ')
				w.walk(c, childPath, run)
				run.buf.WriteByte(' ')
				continue
			}
			w.walk(c, childPath, run)
		}
	}
}

func (w *walker) flush(run *textRun) {
	if run == nil {
		return
	}
	text := collapseSpace(run.buf.String())
	run.buf.Reset()
	w.emit(run.owner, run.path, text)
}

func (w *walker) emit(owner *html.Node, path []page.PathStep, text string) {
	if text == "" {
		return
	}

	tag := owner.Data
	b := page.Block{
		Index:       len(w.blocks),
		Type:        blockType(tag),
		Text:        text,
		LocatorPath: path,
		HTMLID:      attr(owner, "id"),
	}
	if level := headingLevel(tag); level > 0 {
		w.headings.push(level, text, b.HTMLID)
		b.HeadingLevel = level
	}
	b.HeadingPath = w.headings.path()
	b.FullHeadingPath = w.headings.full()
	b.NearestHeadingID = w.headings.nearestID()

	b.CharOffset = w.cursor
	b.CharLength = utf8.RuneCountInString(text)
	w.cursor += b.CharLength

	w.blocks = append(w.blocks, b)
}

// rowText joins the texts of a row's td and th cells with " | ".
// Empty cells are left out.
func (e *Extractor) rowText(tr *html.Node) string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") || e.skip(c) {
			continue
		}
		var buf strings.Builder
		e.text(c, &buf)
		if t := collapseSpace(buf.String()); t != "" {
			cells = append(cells, t)
		}
	}
	return strings.Join(cells, " | ")
}

// text writes the text under n, leaving out skipped subtrees and putting
// spaces around block-level elements.
func (e *Extractor) text(n *html.Node, buf *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			buf.WriteString(c.Data)
		case html.ElementNode:
			if e.skip(c) {
				continue
			}
			if inlineTags[c.Data] {
				e.text(c, buf)
				continue
			}
			buf.WriteByte(' ')
			e.text(c, buf)
			buf.WriteByte(' ')
		}
	}
}

func (e *Extractor) skip(n *html.Node) bool {
	if e.excluded[n.Data] {
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "class":
			for _, cls := range strings.Fields(a.Val) {
				if hasAnyPrefix(cls, e.classPfx) {
					return true
				}
			}
		case "id":
			if hasAnyPrefix(a.Val, e.idPfx) {
				return true
			}
		}
	}
	return false
}

// stepFor records the element's tag and its 1-based position among
// element siblings with the same tag.
func stepFor(n *html.Node) page.PathStep {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.Data == n.Data {
			idx++
		}
	}
	step := page.PathStep{Tag: n.Data, Index: idx, ID: attr(n, "id")}
	if cls := strings.Fields(attr(n, "class")); len(cls) > 0 {
		step.Classes = cls
	}
	return step
}

var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "cite": true,
	"code": true, "data": true, "del": true, "dfn": true, "em": true, "font": true,
	"i": true, "img": true, "ins": true, "kbd": true, "label": true, "mark": true,
	"q": true, "s": true, "samp": true, "small": true, "span": true, "strong": true,
	"sub": true, "sup": true, "time": true, "u": true, "var": true, "wbr": true,
}

func blockType(tag string) page.BlockType {
	if headingLevel(tag) > 0 {
		return page.BlockHeading
	}
	switch tag {
	case "li", "ul", "ol", "dl", "dt", "dd":
		return page.BlockListItem
	case "td", "th", "tr", "table", "thead", "tbody", "tfoot":
		return page.BlockTableCell
	case "blockquote":
		return page.BlockQuote
	case "pre", "code":
		return page.BlockCode
	}
	return page.BlockParagraph
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

// collapseSpace folds every run of Unicode whitespace, NBSP included, into one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
