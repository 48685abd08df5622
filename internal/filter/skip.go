package filter

import (
	"fmt"
	"regexp"
)

// SkipPatterns holds the URL patterns the crawler must not follow, such as
// logout links that would end an authenticated crawl.
type SkipPatterns struct {
	patterns []*regexp.Regexp
}

// NewSkipPatterns compiles the given regular expressions.
func NewSkipPatterns(exprs []string) (*SkipPatterns, error) {
	s := &SkipPatterns{patterns: make([]*regexp.Regexp, 0, len(exprs))}
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid skip pattern %q: %w", expr, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Match reports whether rawURL matches any pattern. A nil SkipPatterns
// matches nothing.
func (s *SkipPatterns) Match(rawURL string) bool {
	if s == nil {
		return false
	}
	for _, re := range s.patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}
