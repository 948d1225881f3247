package sink

import (
	"context"
	"errors"

	"github.com/dgallion1/pagechunk/internal/page"
)

// Composite writes every page to each of its sinks in order. All sinks
// are attempted; the errors are joined.
type Composite struct {
	sinks []Sink
}

func NewComposite(sinks ...Sink) *Composite {
	return &Composite{sinks: sinks}
}

func (c *Composite) WritePage(ctx context.Context, p page.Page, blocks []page.Block, chunks []page.Chunk) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.WritePage(ctx, p, blocks, chunks); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Composite) Close(ctx context.Context, summary Summary) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.Close(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
