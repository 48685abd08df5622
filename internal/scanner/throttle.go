package scanner

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Throttler provides adaptive rate limiting against the crawled site. On
// 429/503 responses or repeated connection errors it backs off
// exponentially; healthy responses bring the delay back toward the base.
type Throttler struct {
	mu           sync.Mutex
	baseDelay    time.Duration
	currentDelay time.Duration
	maxDelay     time.Duration
	consecutive  int // consecutive throttle signals
	enabled      bool
	logger       *zap.Logger
}

// NewThrottler creates an adaptive throttler. A nil logger is allowed.
func NewThrottler(baseDelay time.Duration, enabled bool, logger *zap.Logger) *Throttler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttler{
		baseDelay:    baseDelay,
		currentDelay: baseDelay,
		maxDelay:     30 * time.Second,
		enabled:      enabled,
		logger:       logger,
	}
}

// Delay returns the current per-request delay. Workers should call this
// before each request.
func (t *Throttler) Delay() time.Duration {
	if !t.enabled {
		return t.baseDelay
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentDelay
}

// RecordStatus updates the throttler based on a response status code.
func (t *Throttler) RecordStatus(statusCode int) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if statusCode == 429 || statusCode == 503 {
		t.consecutive++
		if t.backOff() {
			t.logger.Warn("Rate limited, backing off",
				zap.Int("status", statusCode),
				zap.Duration("delay", t.currentDelay))
		}
		return
	}

	if t.consecutive > 0 {
		t.consecutive = 0
		// Halve toward base, never below it.
		newDelay := t.currentDelay / 2
		if newDelay < t.baseDelay {
			newDelay = t.baseDelay
		}
		if newDelay != t.currentDelay {
			t.currentDelay = newDelay
			t.logger.Info("Recovering from rate limit", zap.Duration("delay", t.currentDelay))
		}
	}
}

// RecordError flags a connection error (timeout, reset) as a possible
// rate limit signal. Three in a row trigger a back-off.
func (t *Throttler) RecordError() {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive++
	if t.consecutive >= 3 && t.backOff() {
		t.logger.Warn("Multiple errors, backing off", zap.Duration("delay", t.currentDelay))
	}
}

// backOff doubles the delay within [500ms, maxDelay] and reports whether
// it changed. Callers hold t.mu.
func (t *Throttler) backOff() bool {
	newDelay := t.currentDelay * 2
	if newDelay < 500*time.Millisecond {
		newDelay = 500 * time.Millisecond
	}
	if newDelay > t.maxDelay {
		newDelay = t.maxDelay
	}
	if newDelay == t.currentDelay {
		return false
	}
	t.currentDelay = newDelay
	return true
}
