//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package runner

// Raw mode leaves output processing alone on these platforms.
func fixOutputProcessing(fd int) {}
