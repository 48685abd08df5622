package crawl

import (
	"sort"
	"testing"
)

func TestExtractLinks_RelativeLinks(t *testing.T) {
	body := []byte(`<a href="/admin">Admin</a> <a href="login">Login</a> <link rel="stylesheet" href="/css/site.css">`)
	links := ExtractLinks(body, "http://example.com/docs/")
	sort.Strings(links)
	expected := []string{
		"http://example.com/admin",
		"http://example.com/css/site.css",
		"http://example.com/docs/login",
	}
	if len(links) != len(expected) {
		t.Fatalf("expected %d links, got %d: %v", len(expected), len(links), links)
	}
	for i, l := range links {
		if l != expected[i] {
			t.Errorf("link[%d] = %q, want %q", i, l, expected[i])
		}
	}
}

func TestExtractLinks_CrossOriginRejected(t *testing.T) {
	body := []byte(`<a href="https://other.com/page">External</a> <iframe src="//cdn.example.net/x"></iframe>`)
	links := ExtractLinks(body, "http://example.com")
	if len(links) != 0 {
		t.Errorf("expected 0 links for cross-origin, got %v", links)
	}
}

func TestExtractLinks_NonHTTPRejected(t *testing.T) {
	body := []byte(`<a href="javascript:alert(1)">XSS</a> <a href="mailto:a@b.com">Mail</a> <a href="data:text/html,hi">Data</a> <a href="ftp://example.com/f">FTP</a>`)
	links := ExtractLinks(body, "http://example.com")
	if len(links) != 0 {
		t.Errorf("expected 0 links for non-http URIs, got %v", links)
	}
}

func TestExtractLinks_FragmentStripped(t *testing.T) {
	body := []byte(`<a href="#section">Jump</a> <a href="/page#top">Top</a> <a href="/page">Page</a>`)
	links := ExtractLinks(body, "http://example.com/")
	if len(links) != 1 || links[0] != "http://example.com/page" {
		t.Errorf("expected [http://example.com/page], got %v", links)
	}
}

func TestExtractLinks_Deduplication(t *testing.T) {
	body := []byte(`<a href="/page">1</a> <a href="/page">2</a> <area href="/page"> <frame src="http://example.com/page">`)
	links := ExtractLinks(body, "http://example.com")
	if len(links) != 1 {
		t.Errorf("expected 1 deduplicated link, got %v", links)
	}
}

func TestExtractLinks_FormAction(t *testing.T) {
	body := []byte(`<form action="/submit"></form>`)
	links := ExtractLinks(body, "http://example.com")
	if len(links) != 1 || links[0] != "http://example.com/submit" {
		t.Errorf("expected [http://example.com/submit], got %v", links)
	}
}

func TestExtractLinks_BaseHref(t *testing.T) {
	body := []byte(`<head><base href="/v2/"></head><a href="intro.html">Intro</a>`)
	links := ExtractLinks(body, "http://example.com/index.html")
	if len(links) != 1 || links[0] != "http://example.com/v2/intro.html" {
		t.Errorf("expected [http://example.com/v2/intro.html], got %v", links)
	}
}

func TestExtractLinks_EmptyPathBecomesRoot(t *testing.T) {
	body := []byte(`<a href="http://example.com">Home</a>`)
	links := ExtractLinks(body, "http://example.com/about")
	if len(links) != 1 || links[0] != "http://example.com/" {
		t.Errorf("expected [http://example.com/], got %v", links)
	}
}

func TestResponseContentTypes(t *testing.T) {
	tests := []struct {
		contentType string
		html, css   bool
	}{
		{"text/html; charset=utf-8", true, false},
		{"TEXT/HTML", true, false},
		{"application/xhtml+xml", true, false},
		{"text/css", false, true},
		{"text/css;charset=", false, true},
		{"application/json", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		r := &Response{ContentType: tt.contentType}
		if got := r.IsHTML(); got != tt.html {
			t.Errorf("IsHTML(%q) = %v, want %v", tt.contentType, got, tt.html)
		}
		if got := r.IsCSS(); got != tt.css {
			t.Errorf("IsCSS(%q) = %v, want %v", tt.contentType, got, tt.css)
		}
	}
}

func TestResultDup(t *testing.T) {
	orig := &Result{URL: "http://example.com/", Response: &Response{StatusCode: 200}}
	dup := orig.Dup()
	dup.Description = "changed"
	dup.Data = "details"

	if orig.Description != "" || orig.Data != "" {
		t.Errorf("Dup must not alias the original, got %+v", orig)
	}
	if dup.Response != orig.Response {
		t.Error("Dup should share the response")
	}
	if !orig.OK() {
		t.Error("expected OK for a 200 response")
	}
}
