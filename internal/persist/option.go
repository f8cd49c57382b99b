package persist

import (
	"log/slog"
	"time"

	"github.com/starford/quire/internal/storage"
)

// Option is a functional option for configuring a Coordinator.
type Option func(*Coordinator)

// WithDebounce sets the quiet period before a save is written.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithRetry sets the total number of write attempts and the fixed delay
// between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithAppVersion sets the version string stamped into exports.
func WithAppVersion(v string) Option {
	return func(c *Coordinator) { c.appVersion = v }
}

// WithClock overrides the wall clock used for export stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithWarning registers a callback fired when capacity crosses into the
// near or at limit band.
func WithWarning(fn func(storage.Capacity)) Option {
	return func(c *Coordinator) { c.onWarning = fn }
}

// WithStatusListener registers a callback fired on every status change.
// It runs synchronously and must not block.
func WithStatusListener(fn func(Status)) Option {
	return func(c *Coordinator) { c.onStatus = fn }
}
