// Package testutil provides shared test helpers for building a notebook
// stack over a temporary or in-memory store.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/quire/internal/notebook"
	"github.com/starford/quire/internal/persist"
	"github.com/starford/quire/internal/storage"
)

// Stack is a loaded notebook manager wired to its coordinator.
type Stack struct {
	Backend     storage.Backend
	Coordinator *persist.Coordinator
	Manager     *notebook.Manager
}

// Flush drains pending saves, failing the test on error.
func (s *Stack) Flush(t *testing.T) {
	t.Helper()
	if err := s.Coordinator.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSQLite opens a SQLite backend in a temporary directory.
func TestSQLite(t *testing.T) (*storage.SQLite, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(storage.Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dir
}

// NewStack builds and initializes a stack over backend with a short
// debounce and fast retries.
func NewStack(t *testing.T, backend storage.Backend, opts ...persist.Option) *Stack {
	t.Helper()
	base := []persist.Option{
		persist.WithDebounce(10 * time.Millisecond),
		persist.WithRetry(3, time.Millisecond),
		persist.WithLogger(Logger()),
	}
	c := persist.New(backend, append(base, opts...)...)
	m := notebook.New(c, notebook.WithLogger(Logger()))
	m.Init(context.Background())
	t.Cleanup(func() { _ = c.Flush(context.Background()) })
	return &Stack{Backend: backend, Coordinator: c, Manager: m}
}

// MemoryStack is NewStack over a fresh in-memory backend.
func MemoryStack(t *testing.T, opts ...persist.Option) (*Stack, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	return NewStack(t, mem, opts...), mem
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
