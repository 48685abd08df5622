package output

import (
	"sort"

	"github.com/maxvaer/w3ccheck/internal/crawl"
)

// SortedWriter buffers failures and replays them sorted by a field when
// WriteFooter is called. It wraps any other Writer.
type SortedWriter struct {
	inner    Writer
	sortBy   string
	failures []*crawl.Result
}

// NewSortedWriter wraps inner and buffers failures for sorted replay.
// sortBy is "url" or "description"; ties keep arrival order.
func NewSortedWriter(inner Writer, sortBy string) *SortedWriter {
	return &SortedWriter{inner: inner, sortBy: sortBy}
}

func (w *SortedWriter) WriteHeader() error {
	return w.inner.WriteHeader()
}

func (w *SortedWriter) WriteFailure(f *crawl.Result) error {
	w.failures = append(w.failures, f.Dup())
	return nil
}

func (w *SortedWriter) WriteFooter(stats Stats) error {
	sort.SliceStable(w.failures, func(i, j int) bool {
		a, b := w.failures[i], w.failures[j]
		switch w.sortBy {
		case "description":
			if a.Description != b.Description {
				return a.Description < b.Description
			}
			return a.URL < b.URL
		case "url":
			return a.URL < b.URL
		default:
			return false
		}
	})
	for _, f := range w.failures {
		if err := w.inner.WriteFailure(f); err != nil {
			return err
		}
	}
	return w.inner.WriteFooter(stats)
}

func (w *SortedWriter) Close() error {
	return w.inner.Close()
}
