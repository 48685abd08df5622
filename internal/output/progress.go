package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// Progress tracks and displays crawl progress on stderr. It only draws when
// stderr is a terminal.
type Progress struct {
	total     atomic.Int64
	completed atomic.Int64
	failures  atomic.Int64
	errors    atomic.Int64
	start     time.Time

	mu      sync.Mutex // serialises drawing with ClearLine/Redraw
	w       io.Writer
	done    chan struct{}
	stopped sync.Once
	enabled bool
}

// NewProgress creates a progress tracker. Call Start() to begin display updates.
func NewProgress(total int, quiet bool) *Progress {
	p := &Progress{
		start:   time.Now(),
		w:       os.Stderr,
		done:    make(chan struct{}),
		enabled: !quiet && term.IsTerminal(int(os.Stderr.Fd())),
	}
	p.total.Store(int64(total))
	return p
}

// Start begins periodically printing progress.
func (p *Progress) Start() {
	if !p.enabled {
		return
	}
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Redraw()
			case <-p.done:
				p.Redraw()
				fmt.Fprint(p.w, "\n")
				return
			}
		}
	}()
}

// AddTotal grows the number of pages expected, as links are discovered.
func (p *Progress) AddTotal(n int) {
	p.total.Add(int64(n))
}

// Increment records a fetched page.
func (p *Progress) Increment() {
	p.completed.Add(1)
}

// IncrementFailures records a failed page.
func (p *Progress) IncrementFailures() {
	p.failures.Add(1)
}

// IncrementErrors records an error.
func (p *Progress) IncrementErrors() {
	p.errors.Add(1)
}

// Stop ends the progress display. It is safe to call more than once.
func (p *Progress) Stop() {
	p.stopped.Do(func() { close(p.done) })
}

// ClearLine erases the progress line so other output can be printed. Pair
// it with Redraw.
func (p *Progress) ClearLine() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, "\r\033[K")
}

// Redraw prints the current progress line.
func (p *Progress) Redraw() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, p.line())
}

func (p *Progress) line() string {
	completed := p.completed.Load()
	total := p.total.Load()
	elapsed := time.Since(p.start).Seconds()
	rate := float64(0)
	if elapsed > 0 {
		rate = float64(completed) / elapsed
	}

	pct := float64(0)
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}

	return fmt.Sprintf("\r\033[K[%3.0f%%] %d/%d pages | %.1f pages/s | Failures: %d | Errors: %d",
		pct, completed, total, rate, p.failures.Load(), p.errors.Load())
}
