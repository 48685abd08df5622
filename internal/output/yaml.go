package output

import (
	"io"

	"github.com/maxvaer/w3ccheck/internal/crawl"
	"gopkg.in/yaml.v3"
)

// YAMLWriter is the YAML counterpart of JSONWriter.
type YAMLWriter struct {
	w        io.Writer
	closer   io.Closer
	failures []Failure
}

// NewYAMLWriter creates a YAML output writer.
func NewYAMLWriter(outputFile string) (*YAMLWriter, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	return &YAMLWriter{w: w, closer: closer, failures: []Failure{}}, nil
}

func (y *YAMLWriter) WriteHeader() error { return nil }

func (y *YAMLWriter) WriteFailure(f *crawl.Result) error {
	y.failures = append(y.failures, newFailure(f))
	return nil
}

func (y *YAMLWriter) WriteFooter(stats Stats) error {
	enc := yaml.NewEncoder(y.w)
	enc.SetIndent(2)
	if err := enc.Encode(report{RunID: stats.RunID, Failures: y.failures, Stats: stats}); err != nil {
		return err
	}
	return enc.Close()
}

func (y *YAMLWriter) Close() error {
	if y.closer != nil {
		return y.closer.Close()
	}
	return nil
}
