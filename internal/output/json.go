package output

import (
	"io"

	json "github.com/json-iterator/go"
	"github.com/maxvaer/w3ccheck/internal/crawl"
)

// report is the document written by the JSON and YAML writers.
type report struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	Failures []Failure `json:"failures" yaml:"failures"`
	Stats    Stats     `json:"stats" yaml:"stats"`
}

// JSONWriter collects failures and writes a single JSON report on
// WriteFooter.
type JSONWriter struct {
	w        io.Writer
	closer   io.Closer
	failures []Failure
}

// NewJSONWriter creates a JSON output writer.
func NewJSONWriter(outputFile string) (*JSONWriter, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{w: w, closer: closer, failures: []Failure{}}, nil
}

func (j *JSONWriter) WriteHeader() error { return nil }

func (j *JSONWriter) WriteFailure(f *crawl.Result) error {
	j.failures = append(j.failures, newFailure(f))
	return nil
}

func (j *JSONWriter) WriteFooter(stats Stats) error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(report{RunID: stats.RunID, Failures: j.failures, Stats: stats})
}

func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
