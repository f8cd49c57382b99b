// Package persist coordinates debounced, retried writes of the current
// notebook and the load, export, import and clear workflows around them.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/codec"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// Defaults for the write policy.
const (
	DefaultDebounce      = 500 * time.Millisecond
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

// Coordinator layers debouncing, retries and capacity monitoring over a
// storage.Backend. It never issues a Put before the previous one returned.
type Coordinator struct {
	backend    storage.Backend
	logger     *slog.Logger
	debounce   time.Duration
	attempts   int
	retryDelay time.Duration
	appVersion string
	now        func() time.Time
	onWarning  func(storage.Capacity)
	onStatus   func(Status)

	deb     *Debouncer[pendingWrite]
	writeMu sync.Mutex
	// epoch advances around Import and ClearAll. A save taken under an
	// older epoch is dropped instead of written.
	epoch atomic.Uint64

	mu          sync.Mutex
	state       State
	lastErr     error
	lastSavedAt time.Time
	capacity    storage.Capacity
}

// New returns a coordinator over backend.
func New(backend storage.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:    backend,
		logger:     slog.Default(),
		debounce:   DefaultDebounce,
		attempts:   DefaultRetryAttempts,
		retryDelay: DefaultRetryDelay,
		appVersion: "dev",
		now:        time.Now,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.deb = NewDebouncer(c.debounce, c.writePending)
	if meta, ok := backend.Meta(); ok {
		c.lastSavedAt = meta.LastSavedAt
	}
	return c
}

// Load reads the stored notebook. Failures are recorded (see Status) and
// reported as absent; callers start from an empty notebook in that case.
func (c *Coordinator) Load(ctx context.Context) (*models.Notebook, bool) {
	rec, err := c.backend.Get(ctx)
	if err != nil {
		c.logger.Error("persist: load failed",
			slog.String("kind", apperr.Kind(err)), slog.String("error", err.Error()))
		c.recordError(err)
		return nil, false
	}

	if meta, ok := c.backend.Meta(); ok {
		c.mu.Lock()
		c.lastSavedAt = meta.LastSavedAt
		c.mu.Unlock()
	}
	c.refreshCapacity(ctx)

	if rec == nil {
		c.logger.Info("persist: nothing stored yet")
		return nil, false
	}
	nb, err := codec.Deserialize(rec)
	if err != nil {
		c.logger.Error("persist: stored notebook unreadable", slog.String("error", err.Error()))
		c.recordError(err)
		return nil, false
	}
	c.logger.Info("persist: notebook loaded",
		slog.String("notebook_id", nb.ID),
		slog.Int("sources", len(nb.Sources)),
		slog.Int("notes", len(nb.Notes)))
	return nb, true
}

// Save schedules nb to be written once no further Save arrives within the
// debounce window. It returns immediately.
func (c *Coordinator) Save(nb *models.Notebook) {
	c.deb.Trigger(pendingWrite{nb: nb.Clone(), epoch: c.epoch.Load()})
	c.notify()
}

// pendingWrite is a debounced snapshot and the epoch it was saved under.
type pendingWrite struct {
	nb    *models.Notebook
	epoch uint64
}

// writePending writes a debounced snapshot unless an import or clear
// happened after it was saved.
func (c *Coordinator) writePending(ctx context.Context, w pendingWrite) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if w.epoch != c.epoch.Load() {
		c.logger.Debug("persist: dropped save superseded by import or clear",
			slog.String("notebook_id", w.nb.ID))
		return nil
	}
	return c.write(ctx, w.nb)
}

// Flush writes any pending notebook now and waits for an in-flight write to
// finish. It returns the error of the write it performed, if any.
func (c *Coordinator) Flush(ctx context.Context) error {
	if err := c.deb.Flush(ctx); err != nil {
		return err
	}
	c.deb.Wait()
	return nil
}

// write serializes nb and puts it, retrying transient backend faults.
// The caller holds writeMu.
func (c *Coordinator) write(ctx context.Context, nb *models.Notebook) error {
	c.setState(StateSaving)
	rec, err := codec.Serialize(nb)
	if err != nil {
		c.fail(err)
		return err
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.backend.Put(ctx, rec)
		if err == nil {
			return struct{}{}, nil
		}
		if !apperr.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		// Not every environment reports exhaustion distinctly; a failed
		// write with the store at its limit is treated as quota exceeded.
		if cp, cerr := c.backend.CapacityStatus(ctx); cerr == nil && cp.AtLimit {
			return struct{}{}, backoff.Permanent(fmt.Errorf("persist: write at capacity limit: %w: %w", apperr.ErrQuotaExceeded, err))
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("persist: save failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("next", next),
				slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.lastSavedAt = c.now()
	if meta, ok := c.backend.Meta(); ok {
		c.lastSavedAt = meta.LastSavedAt
	}
	c.lastErr = nil
	c.state = StateSaved
	c.mu.Unlock()

	c.refreshCapacity(ctx)
	c.logger.Debug("persist: saved", slog.String("notebook_id", nb.ID), slog.Int("attempts", attempt))
	c.notify()
	return nil
}

func (c *Coordinator) fail(err error) {
	c.logger.Error("persist: save failed",
		slog.String("kind", apperr.Kind(err)), slog.String("error", err.Error()))
	c.mu.Lock()
	c.state = StateFailed
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
}

// refreshCapacity re-reads capacity and fires the warning callback when
// usage crosses into the near or at limit band.
func (c *Coordinator) refreshCapacity(ctx context.Context) {
	cp, err := c.backend.CapacityStatus(ctx)
	if err != nil {
		c.logger.Warn("persist: capacity unavailable", slog.String("error", err.Error()))
		return
	}
	c.mu.Lock()
	prev := c.capacity
	c.capacity = cp
	c.mu.Unlock()

	crossed := (cp.NearLimit && !prev.NearLimit) || (cp.AtLimit && !prev.AtLimit)
	if crossed {
		c.logger.Warn("persist: storage nearly full",
			slog.Float64("percent_used", cp.PercentageUsed),
			slog.Int64("used_bytes", cp.UsedBytes),
			slog.Int64("quota_bytes", cp.QuotaBytes))
		if c.onWarning != nil {
			c.onWarning(cp)
		}
	}
}

// ClearAll deletes stored data and resets indicators to their zero state.
// A pending write is dropped.
func (c *Coordinator) ClearAll(ctx context.Context) error {
	c.epoch.Add(1)
	c.deb.Cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	// Saves issued while clearing still describe the old notebook.
	defer c.epoch.Add(1)

	if err := c.backend.Clear(ctx); err != nil {
		c.recordError(err)
		return err
	}
	c.mu.Lock()
	c.state = StateIdle
	c.lastErr = nil
	c.lastSavedAt = time.Time{}
	c.capacity = storage.Capacity{}
	c.mu.Unlock()
	c.logger.Info("persist: all data cleared")
	c.notify()
	return nil
}

// DismissError forgets the last recorded error.
func (c *Coordinator) DismissError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
}

// LastError returns the last recorded error, if not dismissed.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastSavedAt returns when the notebook was last written.
func (c *Coordinator) LastSavedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSavedAt
}

// Capacity returns the most recent capacity reading.
func (c *Coordinator) Capacity() storage.Capacity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Status returns an observable snapshot.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		State:       c.state,
		Pending:     c.deb.Pending(),
		LastSavedAt: c.lastSavedAt,
		Capacity:    c.capacity,
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
		s.ErrorKind = apperr.Kind(c.lastErr)
	}
	return s
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) recordError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) notify() {
	if c.onStatus != nil {
		c.onStatus(c.Status())
	}
}
