// Package storage persists the single current notebook record.
package storage

import (
	"context"
	"time"

	"github.com/starford/quire/internal/codec"
)

// Capacity thresholds, as fractions of the quota.
const (
	NearLimitPercent = 80.0
	AtLimitPercent   = 95.0
)

// FallbackQuotaBytes is assumed when the environment cannot report a quota.
const FallbackQuotaBytes int64 = 50 << 20

// Backend is the durable store for one notebook record and its metadata.
// Implementations never run two writes concurrently on behalf of one caller;
// the coordinator guarantees that.
type Backend interface {
	// Put atomically replaces the stored record and its metadata.
	Put(ctx context.Context, rec *codec.Record) error
	// Get returns the stored record, or nil with a nil error when nothing
	// has been stored yet.
	Get(ctx context.Context) (*codec.Record, error)
	// Clear removes the record and metadata. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	// CapacityStatus reports how much of the storage quota is in use.
	CapacityStatus(ctx context.Context) (Capacity, error)
	// Meta returns the last known metadata without touching the durable store.
	Meta() (Meta, bool)
	Close() error
}

// Meta describes the last successful write.
type Meta struct {
	LastSavedAt          time.Time `json:"lastSavedAt"`
	ApproximateSizeBytes int64     `json:"approximateSizeBytes"`
	Checksum             string    `json:"checksum,omitempty"`
}

// Capacity is a point-in-time view of storage usage.
type Capacity struct {
	UsedBytes      int64   `json:"usedBytes"`
	QuotaBytes     int64   `json:"quotaBytes"`
	PercentageUsed float64 `json:"percentageUsed"`
	NearLimit      bool    `json:"nearLimit"`
	AtLimit        bool    `json:"atLimit"`
}

// NewCapacity derives percentages and limit flags from raw figures.
func NewCapacity(used, quota int64) Capacity {
	c := Capacity{UsedBytes: used, QuotaBytes: quota}
	if quota > 0 {
		c.PercentageUsed = float64(used) / float64(quota) * 100
	}
	c.NearLimit = c.PercentageUsed > NearLimitPercent
	c.AtLimit = c.PercentageUsed > AtLimitPercent
	return c
}

// fallbackCapacity estimates usage from the last written size when the
// environment offers no introspection.
func fallbackCapacity(meta Meta, quota int64) Capacity {
	if quota <= 0 {
		quota = FallbackQuotaBytes
	}
	return NewCapacity(meta.ApproximateSizeBytes, quota)
}
