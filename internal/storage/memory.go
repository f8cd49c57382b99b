package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/codec"
)

// Memory is a process-local Backend. It has no capacity introspection, so
// CapacityStatus reports the last written size against the quota.
type Memory struct {
	mu      sync.Mutex
	payload []byte
	meta    Meta
	has     bool
	quota   int64
	puts    int
}

var _ Backend = (*Memory)(nil)

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithQuota makes Put fail with apperr.ErrQuotaExceeded for payloads larger
// than n bytes.
func WithQuota(n int64) MemoryOption {
	return func(m *Memory) { m.quota = n }
}

// NewMemory returns an empty in-memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Put stores a copy of the encoded record.
func (m *Memory) Put(_ context.Context, rec *codec.Record) error {
	payload, err := codec.Marshal(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.quota > 0 && int64(len(payload)) > m.quota {
		return fmt.Errorf("storage: put %d bytes over %d byte quota: %w", len(payload), m.quota, apperr.ErrQuotaExceeded)
	}
	m.payload = payload
	m.meta = Meta{
		LastSavedAt:          time.Now().UTC(),
		ApproximateSizeBytes: int64(len(payload)),
		Checksum:             checksum.Sum(payload),
	}
	m.has = true
	return nil
}

// Get decodes the stored record, or returns nil when empty.
func (m *Memory) Get(_ context.Context) (*codec.Record, error) {
	m.mu.Lock()
	payload := m.payload
	m.mu.Unlock()
	if payload == nil {
		return nil, nil
	}
	return codec.Unmarshal(payload)
}

// Clear drops the record and metadata.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload, m.meta, m.has = nil, Meta{}, false
	return nil
}

// CapacityStatus estimates usage from the last written size.
func (m *Memory) CapacityStatus(_ context.Context) (Capacity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fallbackCapacity(m.meta, m.quota), nil
}

// Meta returns the metadata of the last successful write.
func (m *Memory) Meta() (Meta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta, m.has
}

// Puts returns the number of Put calls made so far.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
