package render

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Renderer converts a source document into HTML for block extraction.
type Renderer interface {
	Render(r io.Reader) (string, error)
}

// SupportedExtensions lists file extensions that can be rendered.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tunes renderers that shell out or degrade.
type Options struct {
	PDFFallbackPdftotext bool
}

// ForFile returns the renderer for a filename.
func ForFile(filename string, opts Options) (Renderer, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &Text{}, nil
	case ".md", ".markdown":
		return &Markdown{}, nil
	case ".csv":
		return &CSV{}, nil
	case ".html", ".htm":
		return &HTML{}, nil
	case ".pdf":
		return &PDF{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCX{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// HTML passes HTML documents through unchanged.
type HTML struct{}

func (h *HTML) Render(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return string(b), nil
}
