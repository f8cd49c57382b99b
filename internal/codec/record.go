// Package codec converts notebooks to and from their storage-safe form.
//
// Records mirror models.Notebook field for field, except that every temporal
// value is carried as RFC 3339 UTC text. The package performs no I/O.
package codec

import "encoding/json"

// SchemaVersion is the version of the record and export envelope layout.
const SchemaVersion = 1

// TimeLayout is the canonical text form of temporal fields.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is the storage-safe form of a notebook.
type Record struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Sources   []SourceRecord `json:"sources"`
	Chat      []ChatRecord   `json:"chat"`
	Outputs   []OutputRecord `json:"outputs"`
	Notes     []NoteRecord   `json:"notes"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

// SourceRecord is the stored form of models.Source.
type SourceRecord struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Name     string         `json:"name"`
	Content  string         `json:"content"`
	Metadata MetadataRecord `json:"metadata"`
}

// MetadataRecord is the stored form of models.SourceMetadata.
type MetadataRecord struct {
	PageCount *int   `json:"pageCount,omitempty"`
	URL       string `json:"url,omitempty"`
	AddedAt   string `json:"addedAt"`
}

// ChatRecord is the stored form of models.ChatMessage.
type ChatRecord struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Timestamp string           `json:"timestamp"`
	Citations []CitationRecord `json:"citations"`
}

// CitationRecord is the stored form of models.Citation.
type CitationRecord struct {
	SourceID   string `json:"sourceId"`
	SourceName string `json:"sourceName"`
	Text       string `json:"text"`
}

// OutputRecord is the stored form of models.StudioOutput.
type OutputRecord struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content"`
	GeneratedAt string          `json:"generatedAt"`
}

// NoteRecord is the stored form of models.Note. Title and RichContent are
// nil only when the keys are absent, as in notes written by older releases;
// an empty string is a current value.
type NoteRecord struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Content     string  `json:"content"`
	RichContent *string `json:"richContent"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt,omitempty"`
}

// Envelope wraps a record for export.
type Envelope struct {
	SchemaVersion int    `json:"schemaVersion"`
	ExportedAt    string `json:"exportedAt"`
	AppVersion    string `json:"appVersion"`
	Notebook      Record `json:"notebook"`
}
