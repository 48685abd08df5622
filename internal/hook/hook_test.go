package hook

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/maxvaer/w3ccheck/internal/crawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("hook tests use sh")
	}
}

func badPage() *crawl.Result {
	return &crawl.Result{
		URL:         "http://site.test/page",
		Referrer:    "http://site.test/",
		Response:    &crawl.Response{StatusCode: 200},
		Description: "Bad HTML (W3C Validator)",
		Data:        "Line: 1, column: 2, error: one\nLine: 3, column: 4, error: two",
	}
}

func TestRun_PayloadOnStdin(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner("cat", nil)

	out, err := r.Run(context.Background(), badPage())
	require.NoError(t, err)

	var got failureJSON
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "http://site.test/page", got.URL)
	assert.Equal(t, "http://site.test/", got.Referrer)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, "Bad HTML (W3C Validator)", got.Description)
	assert.Equal(t, []string{"Line: 1, column: 2, error: one", "Line: 3, column: 4, error: two"}, got.Messages)
}

func TestRun_Placeholders(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner(`printf '%s|%s|%s' {url} {status} {description}`, nil)

	out, err := r.Run(context.Background(), badPage())
	require.NoError(t, err)
	assert.Equal(t, "http://site.test/page|200|Bad HTML (W3C Validator)", string(out))
}

func TestRun_CrawledURLIsNotShellSyntax(t *testing.T) {
	skipOnWindows(t)
	marker := filepath.Join(t.TempDir(), "marker")
	links := crawl.ExtractLinks([]byte(`<a href="/x;touch$IFS`+marker+`">x</a>`), "http://site.test/")
	require.Len(t, links, 1)

	page := badPage()
	page.URL = links[0]
	r := NewRunner("echo {url}", nil)

	out, err := r.Run(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, links[0]+"\n", string(out))
	assert.NoFileExists(t, marker)
}

func TestRun_FailureIsLogged(t *testing.T) {
	skipOnWindows(t)
	core, logs := observer.New(zap.DebugLevel)
	r := NewRunner("echo boom >&2; exit 3", zap.New(core))

	_, err := r.Run(context.Background(), badPage())
	require.Error(t, err)

	entries := logs.FilterMessage("hook command failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["stderr"])
	assert.Equal(t, "hook", entries[0].LoggerName)
}

func TestRun_Timeout(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner("sleep 5", nil)
	r.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), badPage())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}
