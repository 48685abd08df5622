package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/maxvaer/w3ccheck/internal/crawl"
)

// CSVWriter writes one row per failed page. The validator messages stay
// newline-separated in the last column.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter creates a CSV output writer.
func NewCSVWriter(outputFile string) (*CSVWriter, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{w: csv.NewWriter(w), closer: closer}, nil
}

func (c *CSVWriter) WriteHeader() error {
	return c.w.Write([]string{"url", "referrer", "status", "description", "messages"})
}

func (c *CSVWriter) WriteFailure(f *crawl.Result) error {
	status := 0
	if f.Response != nil {
		status = f.Response.StatusCode
	}
	return c.w.Write([]string{
		f.URL,
		f.Referrer,
		strconv.Itoa(status),
		f.Description,
		f.Data,
	})
}

func (c *CSVWriter) WriteFooter(_ Stats) error {
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
