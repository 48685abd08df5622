package crawl

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// linkAttrs lists the elements whose attribute points at another page or
// resource worth validating.
var linkAttrs = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"area[href]", "href"},
	{"link[href]", "href"},
	{"frame[src]", "src"},
	{"iframe[src]", "src"},
	{"form[action]", "action"},
}

// ExtractLinks parses an HTML body and returns the de-duplicated absolute
// URLs it links to on the same host as pageURL. Fragments are dropped and
// a <base href> is honoured.
func ExtractLinks(body []byte, pageURL string) []string {
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	base := page
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = page.ResolveReference(ref)
		}
	}

	seen := make(map[string]struct{})
	var links []string

	for _, la := range linkAttrs {
		doc.Find(la.selector).Each(func(_ int, s *goquery.Selection) {
			raw, _ := s.Attr(la.attr)
			link, ok := resolve(base, page.Host, raw)
			if !ok {
				return
			}
			if _, dup := seen[link]; !dup {
				seen[link] = struct{}{}
				links = append(links, link)
			}
		})
	}

	return links
}

// resolve turns raw into an absolute same-host http(s) URL without its
// fragment.
func resolve(base *url.URL, host, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(resolved.Host, host) {
		return "", false
	}

	resolved.Fragment = ""
	resolved.RawFragment = ""
	if resolved.Path == "" {
		resolved.Path = "/"
	}
	return resolved.String(), true
}

// SameHost reports whether two absolute URLs share a host.
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host)
}
