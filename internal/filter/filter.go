package filter

import "github.com/maxvaer/w3ccheck/internal/crawl"

// Filter decides whether a fetched page is kept away from the validators.
type Filter interface {
	Name() string
	ShouldFilter(result *crawl.Result) bool
}

// Chain applies multiple filters in order, short-circuiting on the first match.
type Chain struct {
	filters []Filter
}

// NewChain returns an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// Add appends a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Apply runs every filter against the result. Returns true and the filter
// name if the page should not be validated.
func (c *Chain) Apply(result *crawl.Result) (bool, string) {
	for _, f := range c.filters {
		if f.ShouldFilter(result) {
			return true, f.Name()
		}
	}
	return false, ""
}
