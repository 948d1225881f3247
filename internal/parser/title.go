package parser

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DocumentTitle returns the text of the <title> element, or of the first
// <h1> when there is no title. It returns "" for unparseable input.
func DocumentTitle(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}
	if t := findElementText(doc, atom.Title); t != "" {
		return t
	}
	return findElementText(doc, atom.H1)
}

func findElementText(n *html.Node, tag atom.Atom) string {
	if n.Type == html.ElementNode && n.DataAtom == tag {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findElementText(c, tag); t != "" {
			return t
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return collapseSpace(buf.String())
}
