package render

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Text renders plain text: blank lines separate paragraphs and line
// breaks inside a paragraph become <br>.
type Text struct{}

func (t *Text) Render(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out strings.Builder
	var lines []string
	flush := func() {
		if len(lines) == 0 {
			return
		}
		out.WriteString("<p>")
		for i, l := range lines {
			if i > 0 {
				out.WriteString("<br>")
			}
			out.WriteString(html.EscapeString(l))
		}
		out.WriteString("</p>\n")
		lines = lines[:0]
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		lines = append(lines, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return "", err
	}
	return out.String(), nil
}
