package filter

import (
	"crypto/md5"
	"sync"

	"github.com/maxvaer/w3ccheck/internal/crawl"
)

// responseKey identifies a unique response by status code and body hash.
type responseKey struct {
	statusCode int
	bodyHash   [16]byte
}

// DuplicateFilter skips pages whose body was already seen, so the same
// document served under several URLs (query strings, trailing slashes,
// aliases) costs one validator call instead of many.
type DuplicateFilter struct {
	mu        sync.Mutex
	seen      map[responseKey]int
	threshold int
}

// NewDuplicateFilter returns a filter that lets up to threshold identical
// responses through before filtering the rest. A threshold below 1 is
// treated as 1.
func NewDuplicateFilter(threshold int) *DuplicateFilter {
	if threshold < 1 {
		threshold = 1
	}
	return &DuplicateFilter{
		seen:      make(map[responseKey]int),
		threshold: threshold,
	}
}

func (d *DuplicateFilter) Name() string { return "duplicate" }

func (d *DuplicateFilter) ShouldFilter(result *crawl.Result) bool {
	if result.Response == nil || len(result.Response.Body) == 0 {
		return false
	}
	key := responseKey{
		statusCode: result.Response.StatusCode,
		bodyHash:   md5.Sum(result.Response.Body),
	}

	d.mu.Lock()
	d.seen[key]++
	count := d.seen[key]
	d.mu.Unlock()

	return count > d.threshold
}
