package navigate

import (
	"strings"
	"testing"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/stretchr/testify/assert"
)

var steps = []page.PathStep{
	{Tag: "html", Index: 1},
	{Tag: "body", Index: 1},
	{Tag: "div", Index: 2, ID: "main"},
	{Tag: "p", Index: 3, Classes: []string{"note", "1bad", "wide"}},
}

func TestTextAnchorURL_EncodesSpaces(t *testing.T) {
	got := TextAnchorURL("https://wiki.example.com/x", "Medical research shows...", 100)
	assert.Equal(t, "https://wiki.example.com/x#:~:text=Medical%20research%20shows...", got)
}

func TestTextAnchorURL_EncodesNonASCIIAndDirectiveSyntax(t *testing.T) {
	assert.Equal(t, "https://w/p#:~:text=Gr%C3%BC%C3%9Fe", TextAnchorURL("https://w/p", "Grüße", 100))
	assert.Equal(t, "https://w/p#:~:text=e%2Dmail%2C%20a%26b", TextAnchorURL("https://w/p", "e-mail, a&b", 100))
}

func TestTextAnchorURL_ReplacesFragmentAndTruncates(t *testing.T) {
	text := strings.Repeat("ab ", 60)
	got := TextAnchorURL("https://w/p#section", text, 100)

	want := "https://w/p#:~:text=" + strings.ReplaceAll(strings.TrimSpace(text[:100]), " ", "%20")
	assert.Equal(t, want, got)
	assert.NotContains(t, got, "#section")
}

func TestTextAnchorURL_EmptyInputs(t *testing.T) {
	assert.Empty(t, TextAnchorURL("", "text", 100))
	assert.Equal(t, "https://w/p", TextAnchorURL("https://w/p", "   ", 100))
}

func TestLocatorPath(t *testing.T) {
	assert.Equal(t, "/html[1]/body[1]/div[2]/p[3]", LocatorPath(steps))
	assert.Empty(t, LocatorPath(nil))
	assert.Empty(t, LocatorPath([]page.PathStep{{Tag: "html", Index: 1}, {Tag: "o:p", Index: 1}}))
	assert.Empty(t, LocatorPath([]page.PathStep{{Tag: "html", Index: 0}}))
}

func TestSelector(t *testing.T) {
	assert.Equal(t,
		"html:nth-of-type(1) > body:nth-of-type(1) > div#main > p.note.wide",
		Selector(steps))
	assert.Equal(t, "span:nth-of-type(4)", Selector([]page.PathStep{{Tag: "span", Index: 4, ID: "9lives"}}))
	assert.Empty(t, Selector([]page.PathStep{{Tag: "o:p", Index: 1}}))
}

func TestResolve(t *testing.T) {
	c := page.Chunk{
		PageURL:        "https://w/p",
		NormalizedText: "Install the agent first.",
		Navigation:     page.Navigation{TextOffsetStart: 42, TextLength: 24},
	}
	first := page.Block{
		Type:             page.BlockListItem,
		LocatorPath:      steps,
		HTMLID:           "step-1",
		NearestHeadingID: "setup",
	}

	NewResolver(DefaultResolverConfig()).Resolve(&c, first)

	nav := c.Navigation
	assert.Equal(t, "https://w/p#:~:text=Install%20the%20agent%20first.", nav.URL)
	assert.Equal(t, "/html[1]/body[1]/div[2]/p[3]", nav.LocatorPathStart)
	assert.Equal(t, "html:nth-of-type(1) > body:nth-of-type(1) > div#main > p.note.wide", nav.SelectorStart)
	assert.Equal(t, 42, nav.TextOffsetStart)
	assert.Equal(t, 24, nav.TextLength)
	assert.Equal(t, page.Highlight{
		TextFragment:     "Install the agent first.",
		BlockType:        page.BlockListItem,
		TextOffset:       42,
		FirstBlockHTMLID: "step-1",
		NearestHeadingID: "setup",
	}, nav.Highlight)
}

func TestResolve_DegradesToOffsets(t *testing.T) {
	c := page.Chunk{NormalizedText: "x", Navigation: page.Navigation{TextOffsetStart: 7, TextLength: 1}}
	NewResolver(ResolverConfig{}).Resolve(&c, page.Block{LocatorPath: []page.PathStep{{Tag: "Bad Tag", Index: 1}}})

	assert.Empty(t, c.Navigation.LocatorPathStart)
	assert.Empty(t, c.Navigation.SelectorStart)
	assert.Empty(t, c.Navigation.URL)
	assert.Equal(t, 7, c.Navigation.TextOffsetStart)
}
