package output

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/maxvaer/w3ccheck/internal/crawl"
)

// Stats holds aggregate crawl statistics.
type Stats struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Pages     int           `json:"pages" yaml:"pages"`         // pages fetched
	Validated int           `json:"validated" yaml:"validated"` // pages handed to the handlers
	Skipped   int           `json:"skipped" yaml:"skipped"`     // validation skipped by a filter
	Failures  int           `json:"failures" yaml:"failures"`
	Errors    int           `json:"errors" yaml:"errors"` // fetch and validator errors
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Writer is implemented by each output format.
type Writer interface {
	WriteHeader() error
	WriteFailure(failure *crawl.Result) error
	WriteFooter(stats Stats) error
	Close() error
}

// Failure is the serialised form of a failed page shared by the structured
// formats.
type Failure struct {
	URL         string   `json:"url" yaml:"url"`
	Referrer    string   `json:"referrer,omitempty" yaml:"referrer,omitempty"`
	Status      int      `json:"status" yaml:"status"`
	Description string   `json:"description" yaml:"description"`
	Messages    []string `json:"messages" yaml:"messages"`
}

func newFailure(r *crawl.Result) Failure {
	f := Failure{
		URL:         r.URL,
		Referrer:    r.Referrer,
		Description: r.Description,
		Messages:    splitData(r.Data),
	}
	if r.Response != nil {
		f.Status = r.Response.StatusCode
	}
	return f
}

func splitData(data string) []string {
	if data == "" {
		return []string{}
	}
	return strings.Split(data, "\n")
}

// New returns the writer for format, writing to outputFile or stdout.
func New(format, outputFile string, noColor, quiet bool) (Writer, error) {
	switch format {
	case "json":
		return NewJSONWriter(outputFile)
	case "csv":
		return NewCSVWriter(outputFile)
	case "yaml":
		return NewYAMLWriter(outputFile)
	default:
		return NewTextWriter(outputFile, noColor, quiet)
	}
}

// openOutput returns stdout, or the created file and its closer.
func openOutput(outputFile string) (io.Writer, io.Closer, error) {
	if outputFile == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
