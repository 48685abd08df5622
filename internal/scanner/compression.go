package scanner

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is advertised on every page request. Setting it by hand
// turns off the transport's transparent gzip, so contentDecoder handles both.
const acceptEncoding = "br, gzip"

// contentDecoder wraps the response body in a reader for its
// Content-Encoding. An empty gzip body decodes to nothing.
func contentDecoder(resp *http.Response) (io.Reader, error) {
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return resp.Body, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if errors.Is(err, io.EOF) {
			return strings.NewReader(""), nil
		}
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return gz, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}
