// Package handler inspects crawled pages and reports the ones that fail a
// check.
package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/maxvaer/w3ccheck/internal/crawl"
)

// Handler checks one crawled page. A nil result means the page passed; a
// failing page is reported as an annotated copy of the input.
type Handler interface {
	Name() string
	Handle(ctx context.Context, result *crawl.Result) (*crawl.Result, error)
}

// Chain runs handlers in order. Unlike a filter chain it does not stop at
// the first failure: every handler gets to look at every page.
type Chain struct {
	handlers []Handler
}

// NewChain returns an empty handler chain.
func NewChain() *Chain {
	return &Chain{}
}

// Add appends a handler to the chain.
func (c *Chain) Add(h Handler) {
	c.handlers = append(c.handlers, h)
}

// Len returns the number of handlers in the chain.
func (c *Chain) Len() int {
	return len(c.handlers)
}

// Apply runs every handler against the result and returns the failures
// they reported. Handler errors are joined; a handler that errored is
// skipped and the rest still run.
func (c *Chain) Apply(ctx context.Context, result *crawl.Result) ([]*crawl.Result, error) {
	var failures []*crawl.Result
	var errs []error
	for _, h := range c.handlers {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		failed, err := h.Handle(ctx, result)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
			continue
		}
		if failed != nil {
			failures = append(failures, failed)
		}
	}
	return failures, errors.Join(errs...)
}
