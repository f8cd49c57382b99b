package persist

import (
	"time"

	"github.com/starford/quire/internal/storage"
)

// State is the phase of the most recent save.
type State string

// Save states.
const (
	StateIdle   State = "idle"
	StateSaving State = "saving"
	StateSaved  State = "saved"
	StateFailed State = "failed"
)

// Status is an observable snapshot of the coordinator.
type Status struct {
	State       State            `json:"state"`
	Pending     bool             `json:"pending"`
	LastSavedAt time.Time        `json:"lastSavedAt"`
	Capacity    storage.Capacity `json:"capacity"`
	Error       string           `json:"error,omitempty"`
	ErrorKind   string           `json:"errorKind,omitempty"`
}
