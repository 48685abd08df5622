package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/maxvaer/w3ccheck/internal/crawl"
	"golang.org/x/term"
)

// TextWriter writes coloured text output, one block per failed page.
type TextWriter struct {
	w      io.Writer
	closer io.Closer
	footer io.Writer
	quiet  bool

	dim, fail, detail, ok *color.Color
}

// NewTextWriter creates a text output writer. If outputFile is empty, stdout
// is used. Colour is only used on a terminal and never with noColor.
func NewTextWriter(outputFile string, noColor, quiet bool) (*TextWriter, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	useColor := !noColor && outputFile == "" && term.IsTerminal(int(os.Stdout.Fd()))
	return newTextWriter(w, closer, os.Stderr, useColor, quiet), nil
}

func newTextWriter(w io.Writer, closer io.Closer, footer io.Writer, useColor, quiet bool) *TextWriter {
	t := &TextWriter{
		w:      w,
		closer: closer,
		footer: footer,
		quiet:  quiet,
		dim:    color.New(color.Faint),
		fail:   color.New(color.FgRed, color.Bold),
		detail: color.New(color.FgYellow),
		ok:     color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{t.dim, t.fail, t.detail, t.ok} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

func (t *TextWriter) WriteHeader() error {
	if t.quiet {
		return nil
	}
	_, err := t.dim.Fprintln(t.w, "Code  URL  Problem")
	return err
}

func (t *TextWriter) WriteFailure(f *crawl.Result) error {
	status := 0
	if f.Response != nil {
		status = f.Response.StatusCode
	}
	if _, err := fmt.Fprintf(t.w, "%3d  %s  %s\n", status, f.URL, t.fail.Sprint(f.Description)); err != nil {
		return err
	}
	if t.quiet {
		return nil
	}
	for _, line := range splitData(f.Data) {
		if _, err := fmt.Fprintf(t.w, "       %s\n", t.detail.Sprint(line)); err != nil {
			return err
		}
	}
	if f.Referrer != "" {
		if _, err := t.dim.Fprintf(t.w, "       linked from %s\n", f.Referrer); err != nil {
			return err
		}
	}
	return nil
}

func (t *TextWriter) WriteFooter(stats Stats) error {
	if t.quiet {
		return nil
	}
	summary := t.ok.Sprint("all pages passed")
	if stats.Failures > 0 {
		summary = t.fail.Sprintf("%d failures", stats.Failures)
	}
	skipped := ""
	if stats.Skipped > 0 {
		skipped = fmt.Sprintf(" | Skipped: %d", stats.Skipped)
	}
	_, err := fmt.Fprintf(t.footer,
		"\nCompleted: %d pages | Validated: %d%s | Errors: %d | Duration: %s | %s\n",
		stats.Pages,
		stats.Validated,
		skipped,
		stats.Errors,
		stats.Duration.Round(time.Millisecond),
		summary,
	)
	return err
}

func (t *TextWriter) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
