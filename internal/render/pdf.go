package render

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// PDF renders each PDF page as a <section> headed "Page N". It tries the
// Go library first, then pdftotext when FallbackPdftotext is set.
type PDF struct {
	FallbackPdftotext bool
}

func (p *PDF) Render(r io.Reader) (string, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "pagechunk-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	text, err := extractPDFText(tmpPath)
	if err != nil && p.FallbackPdftotext {
		text, err = extractPdftotext(tmpPath)
	}
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return pagesToHTML(strings.Split(text, "\f")), nil
}

func pagesToHTML(pages []string) string {
	var out strings.Builder
	for i, pg := range pages {
		pg = strings.TrimSpace(pg)
		if pg == "" {
			continue
		}
		fmt.Fprintf(&out, "<section id=\"page-%d\">\n<h2>Page %d</h2>\n", i+1, i+1)
		for _, para := range strings.Split(pg, "\n\n") {
			if para = strings.TrimSpace(para); para != "" {
				out.WriteString("<p>" + html.EscapeString(para) + "</p>\n")
			}
		}
		out.WriteString("</section>\n")
	}
	return out.String()
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		pg := reader.Page(i)
		if pg.V.IsNull() {
			continue
		}
		text, err := pg.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i > 1 {
			buf.WriteString("\f")
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
