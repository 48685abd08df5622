package reqparse

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ParsedRequest holds the extracted data from a raw HTTP request file.
type ParsedRequest struct {
	Method  string
	URL     string // full URL reconstructed from Host + request line
	Headers map[string]string
}

// skipHeaders are request headers that describe the captured request itself
// and must not be replayed on every crawled page.
var skipHeaders = map[string]bool{
	"host":              true,
	"content-length":    true,
	"accept-encoding":   true,
	"connection":        true,
	"content-type":      true,
	"transfer-encoding": true,
}

// ParseFile reads a raw HTTP request (e.g. a Burp Suite export of a logged-in
// page view) and extracts the start URL and all headers including cookies.
func ParseFile(path string) (*ParsedRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening request file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a raw HTTP request from r.
func Parse(r io.Reader) (*ParsedRequest, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB lines for large cookies

	// Request line: GET /path HTTP/1.1
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading request file: %w", err)
		}
		return nil, fmt.Errorf("request file is empty")
	}
	requestLine := strings.TrimSpace(scanner.Text())
	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid request line: %q", requestLine)
	}
	method := parts[0]
	requestPath := parts[1]

	headers := make(map[string]string)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		colonIdx := strings.Index(line, ":")
		if colonIdx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:colonIdx])
		value := strings.TrimSpace(line[colonIdx+1:])
		headers[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}

	// Some proxies log the absolute URL in the request line.
	if strings.HasPrefix(requestPath, "http://") || strings.HasPrefix(requestPath, "https://") {
		parsedURL, err := url.Parse(requestPath)
		if err != nil {
			return nil, fmt.Errorf("invalid URL in request line: %w", err)
		}
		parsedURL.Fragment = ""
		return &ParsedRequest{Method: method, URL: parsedURL.String(), Headers: headers}, nil
	}

	host, ok := headers["Host"]
	if !ok {
		return nil, fmt.Errorf("request file missing Host header")
	}

	// Burp exports carry no scheme. Assume TLS unless port 80 is explicit.
	scheme := "https"
	if strings.HasSuffix(host, ":80") {
		scheme = "http"
	}
	if !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}

	start, err := url.Parse(scheme + "://" + host + requestPath)
	if err != nil {
		return nil, fmt.Errorf("invalid request target %q: %w", requestPath, err)
	}
	return &ParsedRequest{Method: method, URL: start.String(), Headers: headers}, nil
}

// MergeHeaders copies the replayable headers into dst without overwriting
// keys dst already has (compared case-insensitively), so explicit -H values
// win over the captured ones.
func (p *ParsedRequest) MergeHeaders(dst map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(p.Headers))
	}
	have := make(map[string]bool, len(dst))
	for k := range dst {
		have[strings.ToLower(k)] = true
	}
	for k, v := range p.Headers {
		lk := strings.ToLower(k)
		if skipHeaders[lk] || have[lk] {
			continue
		}
		dst[k] = v
	}
	return dst
}
