//go:build !windows

package runner

import "os"

// sendInterrupt re-raises Ctrl+C, which raw mode swallowed, so the crawl's
// signal context is canceled and the resume state gets saved.
func sendInterrupt() {
	if p, err := os.FindProcess(os.Getpid()); err == nil {
		_ = p.Signal(os.Interrupt)
	}
}
