package storage

import (
	"context"
	"fmt"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/codec"
)

// Unsupported is the Backend used when durable storage cannot be opened in
// this environment. Every operation fails fast with apperr.ErrUnsupported.
type Unsupported struct {
	reason error
}

var _ Backend = Unsupported{}

// NewUnsupported returns a Backend that always fails with reason.
func NewUnsupported(reason error) Unsupported {
	return Unsupported{reason: reason}
}

func (u Unsupported) err() error {
	if u.reason == nil {
		return fmt.Errorf("storage: %w", apperr.ErrUnsupported)
	}
	return fmt.Errorf("storage: %w: %v", apperr.ErrUnsupported, u.reason)
}

func (u Unsupported) Put(context.Context, *codec.Record) error { return u.err() }

func (u Unsupported) Get(context.Context) (*codec.Record, error) { return nil, u.err() }

func (u Unsupported) Clear(context.Context) error { return u.err() }

func (u Unsupported) CapacityStatus(context.Context) (Capacity, error) { return Capacity{}, u.err() }

func (u Unsupported) Meta() (Meta, bool) { return Meta{}, false }

func (u Unsupported) Close() error { return nil }
