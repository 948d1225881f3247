package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/parser"
	"github.com/dgallion1/pagechunk/internal/render"
)

// DirectoryConfig points a Directory source at a tree of documents.
type DirectoryConfig struct {
	Root    string
	BaseURL string // page URL prefix; pages have no URL when empty
	Render  render.Options
}

// Directory walks a local tree and renders every supported file to a page.
// Hidden files and directories are skipped.
type Directory struct {
	cfg    DirectoryConfig
	log    *slog.Logger
	failed atomic.Int64
}

func NewDirectory(cfg DirectoryConfig, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Directory{cfg: cfg, log: log}
}

// Failed returns the number of files that could not be rendered.
func (d *Directory) Failed() int { return int(d.failed.Load()) }

func (d *Directory) Stream(ctx context.Context, out chan<- page.Page) error {
	root := filepath.Clean(d.cfg.Root)
	return filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(de.Name(), ".") {
			if de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if de.IsDir() || !render.IsSupportedExtension(path) {
			return nil
		}

		p, err := d.load(root, path)
		if err != nil {
			d.failed.Add(1)
			d.log.Error("render file failed, skipping", "path", path, "error", err)
			return nil
		}
		select {
		case out <- p:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (d *Directory) load(root, path string) (page.Page, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return page.Page{}, err
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(path)
	if err != nil {
		return page.Page{}, err
	}
	r, err := render.ForFile(path, d.cfg.Render)
	if err != nil {
		return page.Page{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return page.Page{}, err
	}
	defer f.Close()

	html, err := r.Render(f)
	if err != nil {
		return page.Page{}, fmt.Errorf("render %s: %w", rel, err)
	}

	p := page.Page{
		ID:           rel,
		Title:        parser.DocumentTitle(html),
		Version:      1,
		LastModified: info.ModTime().UTC().Format(time.RFC3339),
		HTML:         html,
	}
	if p.Title == "" {
		base := filepath.Base(path)
		p.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if d.cfg.BaseURL != "" {
		p.URL = d.cfg.BaseURL + "/" + rel
	}
	return p, nil
}
