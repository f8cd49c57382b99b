package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/textproj"
)

// FormatTime renders t in the canonical, lexically sortable text form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts any RFC 3339 timestamp, with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Serialize converts nb into its storage-safe record.
func Serialize(nb *models.Notebook) (*Record, error) {
	if nb == nil {
		return nil, fmt.Errorf("codec: serialize nil notebook: %w", apperr.ErrSerialization)
	}
	rec := &Record{
		ID:        nb.ID,
		Title:     nb.Title,
		Sources:   make([]SourceRecord, 0, len(nb.Sources)),
		Chat:      make([]ChatRecord, 0, len(nb.Chat)),
		Outputs:   make([]OutputRecord, 0, len(nb.Outputs)),
		Notes:     make([]NoteRecord, 0, len(nb.Notes)),
		CreatedAt: FormatTime(nb.CreatedAt),
		UpdatedAt: FormatTime(nb.UpdatedAt),
	}

	for _, s := range nb.Sources {
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("codec: source %s: unknown kind %q: %w", s.ID, s.Kind, apperr.ErrSerialization)
		}
		rec.Sources = append(rec.Sources, SourceRecord{
			ID:      s.ID,
			Kind:    string(s.Kind),
			Name:    s.Name,
			Content: s.Content,
			Metadata: MetadataRecord{
				PageCount: s.Metadata.PageCount,
				URL:       s.Metadata.URL,
				AddedAt:   FormatTime(s.Metadata.AddedAt),
			},
		})
	}

	for _, m := range nb.Chat {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("codec: message %s: unknown role %q: %w", m.ID, m.Role, apperr.ErrSerialization)
		}
		cr := ChatRecord{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: FormatTime(m.Timestamp),
		}
		if m.Citations != nil {
			cr.Citations = make([]CitationRecord, 0, len(m.Citations))
			for _, c := range m.Citations {
				cr.Citations = append(cr.Citations, CitationRecord(c))
			}
		}
		rec.Chat = append(rec.Chat, cr)
	}

	for _, o := range nb.Outputs {
		if !o.Kind.Valid() {
			return nil, fmt.Errorf("codec: output %s: unknown kind %q: %w", o.ID, o.Kind, apperr.ErrSerialization)
		}
		if len(o.Content) > 0 && !json.Valid(o.Content) {
			return nil, fmt.Errorf("codec: output %s: content is not valid JSON: %w", o.ID, apperr.ErrSerialization)
		}
		rec.Outputs = append(rec.Outputs, OutputRecord{
			ID:          o.ID,
			Kind:        string(o.Kind),
			Title:       o.Title,
			Content:     o.Content,
			GeneratedAt: FormatTime(o.GeneratedAt),
		})
	}

	for _, n := range nb.Notes {
		rec.Notes = append(rec.Notes, NoteRecord{
			ID:          n.ID,
			Title:       &n.Title,
			Content:     n.Content,
			RichContent: &n.RichContent,
			CreatedAt:   FormatTime(n.CreatedAt),
			UpdatedAt:   FormatTime(n.UpdatedAt),
		})
	}

	return rec, nil
}

// Deserialize converts a record back into a notebook. Notes written before
// titles and rich content existed are upgraded in place.
func Deserialize(rec *Record) (*models.Notebook, error) {
	if rec == nil {
		return nil, fmt.Errorf("codec: deserialize nil record: %w", apperr.ErrDeserialization)
	}
	p := &timeParser{}
	nb := &models.Notebook{
		ID:        rec.ID,
		Title:     rec.Title,
		Sources:   make([]models.Source, 0, len(rec.Sources)),
		Chat:      make([]models.ChatMessage, 0, len(rec.Chat)),
		Outputs:   make([]models.StudioOutput, 0, len(rec.Outputs)),
		Notes:     make([]models.Note, 0, len(rec.Notes)),
		CreatedAt: p.parse("notebook.createdAt", rec.CreatedAt),
		UpdatedAt: p.parse("notebook.updatedAt", rec.UpdatedAt),
	}

	for _, s := range rec.Sources {
		kind := models.SourceKind(s.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("codec: source %s: unknown kind %q: %w", s.ID, s.Kind, apperr.ErrDeserialization)
		}
		nb.Sources = append(nb.Sources, models.Source{
			ID:      s.ID,
			Kind:    kind,
			Name:    s.Name,
			Content: s.Content,
			Metadata: models.SourceMetadata{
				PageCount: s.Metadata.PageCount,
				URL:       s.Metadata.URL,
				AddedAt:   p.parse("source.addedAt", s.Metadata.AddedAt),
			},
		})
	}

	for _, m := range rec.Chat {
		role := models.Role(m.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("codec: message %s: unknown role %q: %w", m.ID, m.Role, apperr.ErrDeserialization)
		}
		msg := models.ChatMessage{
			ID:        m.ID,
			Role:      role,
			Content:   m.Content,
			Timestamp: p.parse("chat.timestamp", m.Timestamp),
		}
		if m.Citations != nil {
			msg.Citations = make([]models.Citation, 0, len(m.Citations))
			for _, c := range m.Citations {
				msg.Citations = append(msg.Citations, models.Citation(c))
			}
		}
		nb.Chat = append(nb.Chat, msg)
	}

	for _, o := range rec.Outputs {
		kind := models.OutputKind(o.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("codec: output %s: unknown kind %q: %w", o.ID, o.Kind, apperr.ErrDeserialization)
		}
		content := o.Content
		if bytes.Equal(bytes.TrimSpace(content), []byte("null")) {
			content = nil
		}
		nb.Outputs = append(nb.Outputs, models.StudioOutput{
			ID:          o.ID,
			Kind:        kind,
			Title:       o.Title,
			Content:     content,
			GeneratedAt: p.parse("output.generatedAt", o.GeneratedAt),
		})
	}

	for _, n := range rec.Notes {
		nb.Notes = append(nb.Notes, upgradeNote(n, p))
	}

	if p.err != nil {
		return nil, p.err
	}
	return nb, nil
}

// upgradeNote maps a note record to the current shape. Legacy notes carry
// only plain content: the title is derived from it and the content doubles
// as rich content.
func upgradeNote(n NoteRecord, p *timeParser) models.Note {
	note := models.Note{
		ID:        n.ID,
		Content:   n.Content,
		CreatedAt: p.parse("note.createdAt", n.CreatedAt),
	}
	if n.UpdatedAt == "" {
		note.UpdatedAt = note.CreatedAt
	} else {
		note.UpdatedAt = p.parse("note.updatedAt", n.UpdatedAt)
	}
	if n.Title != nil {
		note.Title = *n.Title
	} else {
		note.Title = textproj.DeriveTitle(n.Content)
	}
	if n.RichContent != nil {
		note.RichContent = *n.RichContent
	} else {
		note.RichContent = n.Content
	}
	return note
}

// timeParser parses a series of timestamps and keeps the first failure.
type timeParser struct {
	err error
}

func (p *timeParser) parse(field, s string) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	t, err := ParseTime(s)
	if err != nil {
		p.err = fmt.Errorf("codec: %s %q: %v: %w", field, s, err, apperr.ErrDeserialization)
	}
	return t
}

// Marshal encodes a record for storage.
func Marshal(rec *Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal record: %v: %w", err, apperr.ErrSerialization)
	}
	return data, nil
}

// Unmarshal decodes a stored record.
func Unmarshal(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("codec: unmarshal record: %v: %w", err, apperr.ErrDeserialization)
	}
	return &rec, nil
}
