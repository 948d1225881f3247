package confluence

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/dgallion1/pagechunk/internal/page"
	"golang.org/x/sync/errgroup"
)

// SourceConfig selects which pages to stream. Explicit PageIDs win over
// SpaceKey; with neither set every visible page is streamed.
type SourceConfig struct {
	PageIDs       []string
	SpaceKey      string
	MaxConcurrent int
}

// Source streams pages from Confluence with bounded concurrent fetches.
// A page that cannot be fetched is logged, counted and skipped.
type Source struct {
	client *Client
	cfg    SourceConfig
	log    *slog.Logger
	failed atomic.Int64
}

func NewSource(client *Client, cfg SourceConfig, log *slog.Logger) *Source {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{client: client, cfg: cfg, log: log}
}

// Failed returns the number of pages skipped because their fetch failed.
func (s *Source) Failed() int { return int(s.failed.Load()) }

// Stream sends fetched pages to out until every page is done or ctx ends.
// It does not close out.
func (s *Source) Stream(ctx context.Context, out chan<- page.Page) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	fetch := func(id string) {
		g.Go(func() error {
			return s.fetch(gctx, id, out)
		})
	}

	var listErr error
	if len(s.cfg.PageIDs) > 0 {
		s.log.Info("fetching listed pages", "pages", len(s.cfg.PageIDs))
		for _, id := range s.cfg.PageIDs {
			if gctx.Err() != nil {
				break
			}
			fetch(id)
		}
	} else {
		s.log.Info("walking pages", "space_key", s.cfg.SpaceKey)
		listErr = s.client.ListPageIDs(gctx, s.cfg.SpaceKey, func(id string) error {
			fetch(id)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if listErr != nil {
		return listErr
	}
	return ctx.Err()
}

func (s *Source) fetch(ctx context.Context, id string, out chan<- page.Page) error {
	p, err := s.client.GetPage(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.failed.Add(1)
		if errors.Is(err, ErrNotFound) {
			s.log.Warn("page not found, skipping", "page_id", id)
		} else {
			s.log.Error("fetch page failed, skipping", "page_id", id, "error", err)
		}
		return nil
	}
	select {
	case out <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
