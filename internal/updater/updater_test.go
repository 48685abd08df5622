package updater

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarGz(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dist/" + name, Mode: 0o755, Size: int64(len(content)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func releaseServer(t *testing.T, tag string) *httptest.Server {
	t.Helper()
	archive := tarGz(t, "w3ccheck", []byte("new binary"))
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/maxvaer/w3ccheck/releases/latest":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"tag_name": tag,
				"assets": []map[string]string{
					{"name": "w3ccheck_windows_amd64.zip", "browser_download_url": srv.URL + "/win"},
					{"name": "w3ccheck_linux_amd64.tar.gz", "browser_download_url": srv.URL + "/linux"},
				},
			})
		case "/linux":
			_, _ = w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testUpdater(t *testing.T, srv *httptest.Server, current string) (*Updater, string, *bytes.Buffer) {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "w3ccheck")
	require.NoError(t, os.WriteFile(bin, []byte("old binary"), 0o755))

	var out bytes.Buffer
	u := New(current, &out, nil)
	u.APIURL = srv.URL
	u.ExecPath = bin
	u.GOOS, u.GOARCH = "linux", "amd64"
	return u, bin, &out
}

func TestUpdate_ReplacesBinary(t *testing.T) {
	u, bin, out := testUpdater(t, releaseServer(t, "v1.2.0"), "1.1.0")

	require.NoError(t, u.Update(context.Background()))

	data, err := os.ReadFile(bin)
	require.NoError(t, err)
	assert.Equal(t, "new binary", string(data))
	assert.Contains(t, out.String(), "[+] Updated to v1.2.0")
	assert.NoFileExists(t, bin+".old")
}

func TestUpdate_AlreadyUpToDate(t *testing.T) {
	u, bin, out := testUpdater(t, releaseServer(t, "v1.2.0"), "v1.2.0")

	require.NoError(t, u.Update(context.Background()))

	data, err := os.ReadFile(bin)
	require.NoError(t, err)
	assert.Equal(t, "old binary", string(data))
	assert.Contains(t, out.String(), "Already up to date")
}

func TestCheck_DevAlwaysUpdates(t *testing.T) {
	u, _, _ := testUpdater(t, releaseServer(t, "v1.2.0"), "dev")
	rel, err := u.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", rel.GetTagName())
}

func TestCheck_NoReleases(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	u, _, _ := testUpdater(t, srv, "1.0.0")
	_, err := u.Check(context.Background())
	assert.ErrorContains(t, err, "no releases found")
	assert.False(t, errors.Is(err, ErrUpToDate))
}

func TestUpdate_NoAssetForPlatform(t *testing.T) {
	u, _, _ := testUpdater(t, releaseServer(t, "v2.0.0"), "1.0.0")
	u.GOOS, u.GOARCH = "plan9", "arm"
	err := u.Update(context.Background())
	assert.ErrorContains(t, err, "no release asset found for plan9/arm")
}

func TestExtractTarGz_MissingBinary(t *testing.T) {
	_, err := extractTarGz(tarGz(t, "README.md", []byte("x")), "w3ccheck")
	assert.Error(t, err)
}
