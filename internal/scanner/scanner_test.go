package scanner

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/elazarl/goproxy"
	"github.com/maxvaer/w3ccheck/internal/config"
	"github.com/maxvaer/w3ccheck/internal/crawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func testOpts() *config.Options {
	return &config.Options{Threads: 2, Timeout: 5 * time.Second}
}

func newTestRequester(t *testing.T, opts *config.Options) *Requester {
	t.Helper()
	req, err := NewRequester(opts)
	require.NoError(t, err)
	t.Cleanup(req.Close)
	return req
}

func TestRequesterFetch_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "w3ccheck/1.0", r.UserAgent())
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<p>caf\xe9</p>"))
	}))
	defer srv.Close()

	opts := testOpts()
	opts.Headers = map[string]string{"X-Token": "secret"}
	resp, err := newTestRequester(t, opts).Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, resp.IsHTML())
	assert.Equal(t, "<p>café</p>", string(resp.Body))
	assert.Equal(t, srv.URL+"/", resp.URL)
}

func TestRequesterFetch_BinaryBodyDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	resp, err := newTestRequester(t, testOpts()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "image/png", resp.ContentType)
}

func TestRequesterFetch_BodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("a{}b{}c{}d{}"))
	}))
	defer srv.Close()

	opts := testOpts()
	opts.MaxBodySize = 6
	resp, err := newTestRequester(t, opts).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "a{}b{}", string(resp.Body))
}

func TestRequesterFetch_NoRedirectByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		fmt.Fprint(w, "new")
	}))
	defer srv.Close()

	resp, err := newTestRequester(t, testOpts()).Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)

	opts := testOpts()
	opts.FollowRedirects = true
	resp, err = newTestRequester(t, opts).Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, srv.URL+"/new", resp.URL)
}

func TestRequesterFetch_DecompressesBody(t *testing.T) {
	const page = "<!DOCTYPE html><p>compressed</p>"
	encoders := map[string]func(io.Writer) io.WriteCloser{
		"br":   func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) },
		"gzip": func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
	}

	for name, newWriter := range encoders {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept-Encoding"), name)
				w.Header().Set("Content-Type", "text/html")
				w.Header().Set("Content-Encoding", name)
				zw := newWriter(w)
				_, _ = io.WriteString(zw, page)
				_ = zw.Close()
			}))
			defer srv.Close()

			resp, err := newTestRequester(t, testOpts()).Fetch(context.Background(), srv.URL+"/")
			require.NoError(t, err)
			assert.Equal(t, page, string(resp.Body))
		})
	}
}

func TestRequesterFetch_UnknownEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "zstd")
		_, _ = w.Write([]byte{0x28, 0xb5, 0x2f, 0xfd})
	}))
	defer srv.Close()

	_, err := newTestRequester(t, testOpts()).Fetch(context.Background(), srv.URL+"/")
	assert.ErrorContains(t, err, "unsupported content encoding")
}

func TestRequesterFetch_ThroughProxy(t *testing.T) {
	proxy := goproxy.NewProxyHttpServer()
	proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		return r, goproxy.NewResponse(r, goproxy.ContentTypeHtml, http.StatusOK, "<p>via "+r.URL.Host+"</p>")
	})
	srv := httptest.NewServer(proxy)
	defer srv.Close()

	opts := testOpts()
	opts.Proxy = srv.URL
	resp, err := newTestRequester(t, opts).Fetch(context.Background(), "http://site.invalid/")
	require.NoError(t, err)
	assert.Equal(t, "<p>via site.invalid</p>", string(resp.Body))
}

func TestNewRequester_BadProxy(t *testing.T) {
	opts := testOpts()
	opts.Proxy = "://nope"
	_, err := NewRequester(opts)
	assert.Error(t, err)
}

func TestRunWorkerPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<p>%s</p>", r.URL.Path)
	}))
	defer srv.Close()

	req := newTestRequester(t, testOpts())
	items := []WorkItem{
		{URL: srv.URL + "/a", Depth: 1, Referrer: srv.URL + "/"},
		{URL: srv.URL + "/b", Depth: 1},
		{URL: srv.URL + "/missing", Depth: 2},
		{URL: "http://127.0.0.1:1/refused", Depth: 1},
	}

	var results []crawl.Result
	for r := range RunWorkerPool(context.Background(), req, items, WorkerConfig{Threads: 3}) {
		results = append(results, r)
	}
	require.Len(t, results, 4)

	byURL := map[string]crawl.Result{}
	for _, r := range results {
		byURL[r.URL] = r
	}
	refused := byURL["http://127.0.0.1:1/refused"]
	assert.Error(t, refused.Error)
	assert.Nil(t, refused.Response)
	for _, u := range []string{"/a", "/b", "/missing"} {
		require.NoError(t, byURL[srv.URL+u].Error)
	}
	assert.Equal(t, "<p>/a</p>", string(byURL[srv.URL+"/a"].Response.Body))
	assert.Equal(t, srv.URL+"/", byURL[srv.URL+"/a"].Referrer)
	assert.Equal(t, 404, byURL[srv.URL+"/missing"].Response.StatusCode)
	assert.Equal(t, 2, byURL[srv.URL+"/missing"].Depth)
}

func TestRunWorkerPool_Cancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	items := make([]WorkItem, 100)
	for i := range items {
		items[i] = WorkItem{URL: fmt.Sprintf("%s/%d", srv.URL, i)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	pauser := NewPauser()
	pauser.Toggle()

	results := RunWorkerPool(ctx, newTestRequester(t, testOpts()), items, WorkerConfig{Threads: 4, Pauser: pauser})
	cancel()

	count := 0
	for range results {
		count++
	}
	assert.Zero(t, count, "paused workers should exit on cancel without fetching")
}

func TestThrottler(t *testing.T) {
	th := NewThrottler(100*time.Millisecond, true, nil)
	assert.Equal(t, 100*time.Millisecond, th.Delay())

	th.RecordStatus(429)
	assert.Equal(t, 500*time.Millisecond, th.Delay())
	th.RecordStatus(503)
	assert.Equal(t, time.Second, th.Delay())

	th.RecordStatus(200)
	assert.Equal(t, 500*time.Millisecond, th.Delay())

	th.RecordError()
	th.RecordError()
	assert.Equal(t, 500*time.Millisecond, th.Delay(), "two errors are not a signal yet")
	th.RecordError()
	assert.Equal(t, time.Second, th.Delay())

	for i := 0; i < 20; i++ {
		th.RecordStatus(429)
	}
	assert.Equal(t, 30*time.Second, th.Delay())
}

func TestThrottlerDisabled(t *testing.T) {
	th := NewThrottler(50*time.Millisecond, false, nil)
	th.RecordStatus(429)
	th.RecordError()
	assert.Equal(t, 50*time.Millisecond, th.Delay())
}
