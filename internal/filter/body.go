package filter

import (
	"bytes"

	"github.com/maxvaer/w3ccheck/internal/crawl"
)

// BodyExcludeFilter skips pages whose body contains a marker, e.g. a
// "<!-- novalidate -->" comment on pages that embed third-party markup.
type BodyExcludeFilter struct {
	needle []byte
}

// NewBodyExcludeFilter creates a filter that skips pages containing needle.
func NewBodyExcludeFilter(needle string) *BodyExcludeFilter {
	return &BodyExcludeFilter{needle: []byte(needle)}
}

func (f *BodyExcludeFilter) Name() string { return "body-exclude" }

func (f *BodyExcludeFilter) ShouldFilter(result *crawl.Result) bool {
	if result.Response == nil || len(f.needle) == 0 {
		return false
	}
	return bytes.Contains(result.Response.Body, f.needle)
}
