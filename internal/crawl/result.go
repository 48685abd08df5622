package crawl

import (
	"mime"
	"net/http"
	"strings"
	"time"
)

// Response holds the parts of a fetched page that handlers look at. Body is
// already decoded to UTF-8.
type Response struct {
	URL         string
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// IsHTML reports whether the page was served as HTML or XHTML.
func (r *Response) IsHTML() bool {
	switch r.mediaType() {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

// IsCSS reports whether the page was served as a style sheet.
func (r *Response) IsCSS() bool {
	return r.mediaType() == "text/css"
}

func (r *Response) mediaType() string {
	if r == nil || r.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		// Fall back to the part before any parameters.
		mt, _, _ = strings.Cut(r.ContentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Result is one crawled page. Handlers report a failure by returning a
// copy with Description and Data filled in.
type Result struct {
	URL      string
	Referrer string
	Depth    int
	Response *Response
	Error    error

	Description string
	Data        string
}

// Dup returns a copy of r that can be annotated without touching r. The
// response is shared; handlers treat it as read-only.
func (r *Result) Dup() *Result {
	d := *r
	return &d
}

// OK reports whether the page was fetched and answered 200.
func (r *Result) OK() bool {
	return r.Error == nil && r.Response != nil && r.Response.StatusCode == http.StatusOK
}
