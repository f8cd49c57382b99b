// Package models defines the domain types for Quire.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notebook is the root aggregate. It exclusively owns every child entity.
type Notebook struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Sources   []Source       `json:"sources"`
	Chat      []ChatMessage  `json:"chat"`
	Outputs   []StudioOutput `json:"outputs"`
	Notes     []Note         `json:"notes"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// DefaultTitle is used for freshly created notebooks.
const DefaultTitle = "Untitled notebook"

// New returns an empty notebook with a fresh identity.
func New(title string, now time.Time) *Notebook {
	if title == "" {
		title = DefaultTitle
	}
	return &Notebook{
		ID:        uuid.NewString(),
		Title:     title,
		Sources:   []Source{},
		Chat:      []ChatMessage{},
		Outputs:   []StudioOutput{},
		Notes:     []Note{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the notebook.
func (n *Notebook) Clone() *Notebook {
	if n == nil {
		return nil
	}
	out := *n
	out.Sources = make([]Source, len(n.Sources))
	for i, s := range n.Sources {
		out.Sources[i] = s.clone()
	}
	out.Chat = make([]ChatMessage, len(n.Chat))
	for i, m := range n.Chat {
		out.Chat[i] = m.clone()
	}
	out.Outputs = make([]StudioOutput, len(n.Outputs))
	for i, o := range n.Outputs {
		out.Outputs[i] = o.clone()
	}
	out.Notes = append([]Note(nil), n.Notes...)
	if out.Notes == nil {
		out.Notes = []Note{}
	}
	return &out
}

// SourceKind is the origin of a source document.
type SourceKind string

// Source kinds.
const (
	SourcePDF  SourceKind = "pdf"
	SourceURL  SourceKind = "website"
	SourceText SourceKind = "text"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourcePDF, SourceURL, SourceText:
		return true
	}
	return false
}

// Source is a user-supplied document used as grounding context.
type Source struct {
	ID       string         `json:"id"`
	Kind     SourceKind     `json:"kind"`
	Name     string         `json:"name"`
	Content  string         `json:"content"`
	Metadata SourceMetadata `json:"metadata"`
}

// SourceMetadata carries optional facts about a source.
type SourceMetadata struct {
	PageCount *int      `json:"pageCount,omitempty"`
	URL       string    `json:"url,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

func (s Source) clone() Source {
	if s.Metadata.PageCount != nil {
		pc := *s.Metadata.PageCount
		s.Metadata.PageCount = &pc
	}
	return s
}

// Role identifies the author of a chat turn.
type Role string

// Chat roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatMessage is one append-only turn of the conversation.
type ChatMessage struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Citations []Citation `json:"citations,omitempty"`
}

func (m ChatMessage) clone() ChatMessage {
	if m.Citations != nil {
		m.Citations = append([]Citation(nil), m.Citations...)
	}
	return m
}

// Citation points at a source by id. The reference is weak: the source may
// have been removed since, so SourceName is kept for display.
type Citation struct {
	SourceID   string `json:"sourceId"`
	SourceName string `json:"sourceName"`
	Text       string `json:"text"`
}

// OutputKind selects the shape of a studio output payload.
type OutputKind string

// Studio output kinds.
const (
	OutputMindMap     OutputKind = "mind-map"
	OutputReport      OutputKind = "report"
	OutputFlashcards  OutputKind = "flashcards"
	OutputQuiz        OutputKind = "quiz"
	OutputInfographic OutputKind = "infographic"
	OutputSlides      OutputKind = "slide-deck"
	OutputDataTable   OutputKind = "data-table"
	OutputAudio       OutputKind = "audio-overview"
	OutputVideo       OutputKind = "video-overview"
)

// OutputKinds lists every known output kind.
var OutputKinds = []OutputKind{
	OutputMindMap, OutputReport, OutputFlashcards, OutputQuiz, OutputInfographic,
	OutputSlides, OutputDataTable, OutputAudio, OutputVideo,
}

// Valid reports whether k is a known output kind.
func (k OutputKind) Valid() bool {
	for _, v := range OutputKinds {
		if v == k {
			return true
		}
	}
	return false
}

// StudioOutput is a generated artifact. Content is opaque here; its schema
// depends on Kind and is only interpreted by presentation code.
type StudioOutput struct {
	ID          string          `json:"id"`
	Kind        OutputKind      `json:"kind"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

func (o StudioOutput) clone() StudioOutput {
	if o.Content != nil {
		o.Content = append(json.RawMessage(nil), o.Content...)
	}
	return o
}

// Note is a user-authored rich-text document. Content is the plain-text
// projection of RichContent.
type Note struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	RichContent string    `json:"richContent"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
