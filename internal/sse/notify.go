package sse

import (
	"time"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/persist"
	"github.com/starford/quire/internal/storage"
)

// NotebookSummary is the payload of a notebook.changed event. Clients fetch
// the full notebook when they need it.
type NotebookSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Sources   int       `json:"sources"`
	Chat      int       `json:"chat"`
	Outputs   int       `json:"outputs"`
	Notes     int       `json:"notes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NotebookChanged publishes a notebook.changed event for nb.
func (b *Broker) NotebookChanged(nb *models.Notebook) {
	b.Publish(Event{Type: EventNotebookChanged, Data: NotebookSummary{
		ID:        nb.ID,
		Title:     nb.Title,
		Sources:   len(nb.Sources),
		Chat:      len(nb.Chat),
		Outputs:   len(nb.Outputs),
		Notes:     len(nb.Notes),
		UpdatedAt: nb.UpdatedAt,
	}})
}

// SaveStatus publishes a save.status event.
func (b *Broker) SaveStatus(s persist.Status) {
	b.Publish(Event{Type: EventSaveStatus, Data: s})
}

// StorageWarning publishes a storage.warning event.
func (b *Broker) StorageWarning(c storage.Capacity) {
	b.Publish(Event{Type: EventStorageWarning, Data: c})
}
