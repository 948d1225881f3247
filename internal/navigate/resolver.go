// Package navigate computes the locators a browser client needs to find
// and highlight a chunk in its source page.
package navigate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/pagechunk/internal/page"
)

// ResolverConfig sets how much chunk text goes into the anchor and the
// highlight payload, in code points.
type ResolverConfig struct {
	AnchorChars   int
	FragmentChars int
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{AnchorChars: 100, FragmentChars: 100}
}

// Resolver fills Chunk.Navigation. It never fails: when the structural
// locators cannot be built they stay empty and the character offsets
// remain authoritative.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.AnchorChars <= 0 {
		cfg.AnchorChars = 100
	}
	if cfg.FragmentChars <= 0 {
		cfg.FragmentChars = 100
	}
	return &Resolver{cfg: cfg}
}

// Resolve populates c.Navigation from the chunk and its first primary
// block. TextOffsetStart, TextLength and the highlight fragments are kept
// as set by the builder.
func (r *Resolver) Resolve(c *page.Chunk, first page.Block) {
	nav := &c.Navigation
	nav.URL = TextAnchorURL(c.PageURL, c.NormalizedText, r.cfg.AnchorChars)
	nav.LocatorPathStart = LocatorPath(first.LocatorPath)
	nav.SelectorStart = Selector(first.LocatorPath)
	hl := &nav.Highlight
	hl.TextFragment = prefix(c.NormalizedText, r.cfg.FragmentChars)
	hl.BlockType = first.Type
	hl.TextOffset = nav.TextOffsetStart
	hl.FirstBlockHTMLID = first.HTMLID
	hl.NearestHeadingID = first.NearestHeadingID
}

var (
	tagName = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	cssName = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)
)

// LocatorPath renders steps as an absolute path such as
// /html[1]/body[1]/div[2]/p[1]. It returns "" if any step is unusable.
func LocatorPath(steps []page.PathStep) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range steps {
		if !tagName.MatchString(s.Tag) || s.Index < 1 {
			return ""
		}
		b.WriteByte('/')
		b.WriteString(s.Tag)
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(s.Index))
		b.WriteByte(']')
	}
	return b.String()
}

// Selector renders steps as a child-combinator chain. Each step prefers
// tag#id, then tag.class, then tag:nth-of-type(n). Classes are less
// stable than the locator path; treat the selector as a fallback.
func Selector(steps []page.PathStep) string {
	if len(steps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		if !tagName.MatchString(s.Tag) {
			return ""
		}
		parts = append(parts, selectorStep(s))
	}
	return strings.Join(parts, " > ")
}

func selectorStep(s page.PathStep) string {
	if s.ID != "" && cssName.MatchString(s.ID) {
		return s.Tag + "#" + s.ID
	}
	var classes []string
	for _, c := range s.Classes {
		if cssName.MatchString(c) {
			classes = append(classes, c)
		}
	}
	if len(classes) > 0 {
		return s.Tag + "." + strings.Join(classes, ".")
	}
	if s.Index > 0 {
		return s.Tag + ":nth-of-type(" + strconv.Itoa(s.Index) + ")"
	}
	return s.Tag
}

// TextAnchorURL appends a scroll-to-text fragment built from the first n
// code points of text: <url>#:~:text=<encoded>. Any fragment already on
// pageURL is replaced. An empty pageURL yields "".
func TextAnchorURL(pageURL, text string, n int) string {
	if pageURL == "" {
		return ""
	}
	if i := strings.IndexByte(pageURL, '#'); i >= 0 {
		pageURL = pageURL[:i]
	}
	snippet := prefix(text, n)
	if snippet == "" {
		return pageURL
	}
	return pageURL + "#:~:text=" + EncodeTextDirective(snippet)
}

// EncodeTextDirective percent-encodes s for a text directive value.
// Unreserved ASCII except '-' and the '/' separator pass through; every
// other byte of the UTF-8 form becomes %XX. '-', '&' and ',' are
// directive syntax and are always encoded.
func EncodeTextDirective(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keepLiteral(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func keepLiteral(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '.', c == '_', c == '~', c == '/':
		return true
	}
	return false
}

// prefix returns the first n code points of s with surrounding spaces trimmed.
func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) > n {
		i := 0
		for pos := range s {
			if i == n {
				s = s[:pos]
				break
			}
			i++
		}
	}
	return strings.TrimSpace(s)
}
