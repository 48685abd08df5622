package scanner

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maxvaer/w3ccheck/internal/config"
	"github.com/maxvaer/w3ccheck/internal/crawl"
	"golang.org/x/net/html/charset"
)

const defaultMaxBody = 5 * 1024 * 1024

// Requester wraps an HTTP client for crawling the site under test.
type Requester struct {
	client    *http.Client
	headers   map[string]string
	userAgent string
	maxBody   int64
}

// NewRequester creates a Requester from the provided options.
func NewRequester(opts *config.Options) (*Requester, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.Insecure},
		DialContext: (&net.Dialer{
			Timeout: opts.Timeout,
		}).DialContext,
		MaxIdleConnsPerHost: opts.Threads,
		MaxIdleConns:        opts.Threads,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}

	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = "w3ccheck/1.0"
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	return &Requester{
		client:    client,
		headers:   opts.Headers,
		userAgent: ua,
		maxBody:   maxBody,
	}, nil
}

// Fetch GETs rawURL. Bodies of textual responses are decompressed, read up
// to the size limit and decoded to UTF-8 using the declared or sniffed
// charset. Other bodies are discarded.
func (r *Requester) Fetch(ctx context.Context, rawURL string) (*crawl.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept-Encoding", acceptEncoding)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// After followed redirects, URL is where the body actually came from.
	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	result := &crawl.Response{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if isText(result.ContentType) {
		decoded, err := contentDecoder(resp)
		if err != nil {
			return nil, fmt.Errorf("decoding response body for %s: %w", rawURL, err)
		}
		body, err := decodeBody(io.LimitReader(decoded, r.maxBody), result.ContentType)
		if err != nil {
			return nil, fmt.Errorf("reading response body for %s: %w", rawURL, err)
		}
		result.Body = body
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, r.maxBody))
	}
	result.Duration = time.Since(start)

	return result, nil
}

// Close releases idle connections.
func (r *Requester) Close() {
	r.client.CloseIdleConnections()
}

func decodeBody(body io.Reader, contentType string) ([]byte, error) {
	reader, err := charset.NewReader(body, contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" ||
		strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "xhtml") ||
		strings.Contains(ct, "xml")
}
