package api

import (
	"encoding/json"

	"github.com/starford/quire/internal/codec"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notebook"
	"github.com/starford/quire/internal/persist"
)

// RenameRequest is the request body for renaming the notebook.
type RenameRequest struct {
	Title string `json:"title" example:"Thesis research" validate:"required"`
}

// AddSourceRequest is the JSON request body for adding a source.
type AddSourceRequest struct {
	Kind      models.SourceKind `json:"kind" example:"website" validate:"required"`
	Name      string            `json:"name" example:"Wikipedia: Go" validate:"required"`
	Content   string            `json:"content"`
	PageCount *int              `json:"pageCount,omitempty"`
	URL       string            `json:"url,omitempty" example:"https://en.wikipedia.org/wiki/Go"`
}

// AppendMessageRequest is the request body for a chat turn.
type AppendMessageRequest struct {
	Role      models.Role       `json:"role" example:"user" validate:"required"`
	Content   string            `json:"content" validate:"required"`
	Citations []models.Citation `json:"citations,omitempty"`
}

// AddOutputRequest is the request body for a studio output.
type AddOutputRequest struct {
	Kind    models.OutputKind `json:"kind" example:"report" validate:"required"`
	Title   string            `json:"title" example:"Summary"`
	Content json.RawMessage   `json:"content"`
}

// AddNoteRequest is the request body for creating a note.
type AddNoteRequest struct {
	Title     string `json:"title" example:"Findings"`
	HTML      string `json:"html" example:"<p>Tea &amp; cake</p>"`
	PlainText string `json:"plainText" example:"Tea & cake"`
}

// UpdateNoteRequest is the request body for updating a note. Omitted fields
// are left unchanged; html and plainText travel together.
type UpdateNoteRequest struct {
	Title     *string `json:"title,omitempty"`
	HTML      *string `json:"html,omitempty"`
	PlainText *string `json:"plainText,omitempty"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []notebook.Hit `json:"results" validate:"required"`
}

// StorageResponse describes persistence state for the storage panel.
type StorageResponse struct {
	persist.Status
	Breakdown codec.Breakdown `json:"breakdown"`
}

// ImportResponse is returned after a successful import.
type ImportResponse struct {
	Notebook *models.Notebook `json:"notebook" validate:"required"`
}
