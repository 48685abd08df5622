package w3c

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseBytes caps how much of a validator response is read. SOAP
// responses for very broken documents run to a few megabytes.
const maxResponseBytes = 16 * 1024 * 1024

// Parameters that the validators treat as booleans and expect as 1 or 0.
var boolParams = []string{"fbc", "fbd", "verbose", "debug", "ss", "outline"}

// Parameters that name the document to validate. A request carries exactly
// one of them, always taken from the call rather than the client defaults.
var contentParams = []string{"uri", "fragment", "uploaded_file", "text"}

// Option configures a validator client.
type Option func(*client)

// WithValidatorURI points the client at a different validator instance,
// e.g. a local install at http://localhost/w3c-validator/check.
func WithValidatorURI(uri string) Option {
	return func(c *client) {
		if uri != "" {
			c.uri = uri
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimit limits how often the validator is called. The public W3C
// services ask for no more than one request per second, which is the
// default. rate.Inf disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithUserAgent sets the User-Agent header on validator requests.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithParam sets a default request parameter sent with every request, e.g.
// WithParam("verbose", "true"). Content parameters are ignored.
func WithParam(key, value string) Option {
	return func(c *client) {
		c.params.Set(key, value)
	}
}

// client holds what the markup and CSS validators share: the endpoint, the
// HTTP plumbing and the default request parameters.
type client struct {
	uri        string
	httpClient *http.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	userAgent  string
	params     url.Values
}

func newClient(defaultURI string, opts []Option) *client {
	c := &client{
		uri:        defaultURI,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		userAgent:  DefaultUserAgent,
		params:     url.Values{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URI returns the validator endpoint the client talks to.
func (c *client) URI() string { return c.uri }

// requestParams merges the client defaults with the per-call content and
// checks that one of the accepted content parameters is present.
func (c *client) requestParams(content url.Values, accepted ...string) (url.Values, error) {
	params := url.Values{}
	for k, vs := range c.params {
		if isContentParam(k) {
			continue
		}
		params[k] = append([]string(nil), vs...)
	}
	for k, vs := range content {
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		params[k] = append([]string(nil), vs...)
	}
	params.Set("output", SOAPOutputParam)

	found := false
	for _, k := range accepted {
		if params.Get(k) != "" {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrMissingContent
	}

	for _, k := range boolParams {
		if vs, ok := params[k]; ok && len(vs) > 0 {
			params.Set(k, boolParam(vs[0]))
		}
	}
	return params, nil
}

// upload is a file sent as the uploaded_file multipart part.
type upload struct {
	name string
	data []byte
}

// send performs one request against the validator and returns the response
// with its body already read.
func (c *client) send(ctx context.Context, method string, params url.Values, up *upload) (*http.Response, []byte, error) {
	target, err := url.Parse(c.uri)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid validator uri %q: %w", ErrValidatorUnavailable, c.uri, err)
	}

	var body io.Reader
	contentType := ""
	if method == http.MethodPost {
		buf, ct, err := multipartBody(params, up)
		if err != nil {
			return nil, nil, fmt.Errorf("building request body: %w", err)
		}
		body, contentType = buf, ct
	} else {
		q := target.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrValidatorUnavailable, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, c.handleError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, c.handleError(err)
	}

	c.logger.Debug("Validator responded",
		zap.String("method", method),
		zap.String("validator", c.uri),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, data, nil
}

// handleError is the single place where failures from talking to the
// validator are classified into ErrValidatorUnavailable or ErrParsing.
// Context cancellation is passed through untouched.
func (c *client) handleError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrParsing), errors.Is(err, ErrValidatorUnavailable), errors.Is(err, ErrMissingContent):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		c.logger.Warn("Validator request failed", zap.String("validator", c.uri), zap.Error(err))
		return fmt.Errorf("%w: unable to connect to the validator at %s: %w", ErrValidatorUnavailable, c.uri, err)
	}
	return fmt.Errorf("%w: %w", ErrParsing, err)
}

// checkStatus rejects responses that cannot carry a validation result.
// SOAP faults arrive with 5xx statuses and are left for the parser.
func (c *client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: %s answered %s", ErrValidatorUnavailable, c.uri, resp.Status)
	}
	return nil
}

func multipartBody(params url.Values, up *upload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "uploaded_file" {
			continue
		}
		for _, v := range params[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}

	if up != nil {
		part, err := w.CreateFormFile("uploaded_file", up.name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(up.data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// readLocalFile reads a file to validate.
func readLocalFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func isContentParam(k string) bool {
	for _, c := range contentParams {
		if k == c {
			return true
		}
	}
	return false
}

// boolParam renders a boolean-ish parameter value as "1" or "0". Integers
// pass through unchanged.
func boolParam(v string) string {
	if _, err := strconv.Atoi(v); err == nil {
		return v
	}
	if v == "" {
		return "0"
	}
	if b, err := strconv.ParseBool(v); err == nil && !b {
		return "0"
	}
	return "1"
}
