// Package source delivers pages to the run loop.
package source

import (
	"context"

	"github.com/dgallion1/pagechunk/internal/page"
)

// Source streams pages into out until it is exhausted or ctx ends.
// Implementations never close out; the caller owns the channel.
type Source interface {
	Stream(ctx context.Context, out chan<- page.Page) error
}

// FailureCounter is implemented by sources that skip pages they could not
// load, so the run summary can count them.
type FailureCounter interface {
	Failed() int
}

// Static streams a fixed list of pages.
type Static []page.Page

func (s Static) Stream(ctx context.Context, out chan<- page.Page) error {
	for _, p := range s {
		select {
		case out <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
