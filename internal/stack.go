package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/notebook"
	"github.com/starford/quire/internal/persist"
	"github.com/starford/quire/internal/storage"
)

// flushTimeout bounds the final write on shutdown.
const flushTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger initializes the structured JSON logger and makes it the default.
func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// stack is the storage backend, the persistence coordinator and the
// notebook manager wired together.
type stack struct {
	backend storage.Backend
	store   *persist.Coordinator
	nb      *notebook.Manager
	logger  *slog.Logger
}

// openStack opens the configured backend and loads the notebook. When the
// data directory cannot host a database the app still starts, with every
// save failing as unsupported.
func openStack(ctx context.Context, cfg *Config, logger *slog.Logger, extra ...persist.Option) (*stack, error) {
	if meta, ok := storage.ReadQuickMeta(cfg.Storage.Dir); ok {
		logger.Info("previous save found",
			slog.Time("last_saved_at", meta.LastSavedAt),
			slog.Int64("size_bytes", meta.ApproximateSizeBytes))
	}

	var backend storage.Backend
	db, err := storage.Open(storage.Options{Dir: cfg.Storage.Dir, QuotaBytes: cfg.Storage.QuotaBytes})
	switch {
	case err == nil:
		backend = db
	case errors.Is(err, apperr.ErrUnsupported):
		logger.Warn("durable storage unavailable, changes will not be saved",
			slog.String("dir", cfg.Storage.Dir), slog.String("error", err.Error()))
		backend = storage.NewUnsupported(err)
	default:
		return nil, fmt.Errorf("init storage: %w", err)
	}

	opts := []persist.Option{
		persist.WithLogger(logger),
		persist.WithDebounce(cfg.Storage.Debounce),
		persist.WithRetry(cfg.Storage.RetryAttempts, cfg.Storage.RetryDelay),
		persist.WithAppVersion(cfg.App.Version),
	}
	store := persist.New(backend, append(opts, extra...)...)
	nb := notebook.New(store, notebook.WithLogger(logger))
	nb.Init(ctx)

	return &stack{backend: backend, store: store, nb: nb, logger: logger}, nil
}

// Close writes any pending change and closes the backend.
func (s *stack) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.store.Flush(ctx); err != nil {
		s.logger.Error("final flush failed", slog.String("error", err.Error()))
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("close storage", slog.String("error", err.Error()))
	}
}
