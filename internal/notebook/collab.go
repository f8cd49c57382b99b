package notebook

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/textproj"
)

// NoteEdit is what the rich-text editor hands back: the HTML and its
// plain-text rendering. PlainText may be empty, in which case it is derived.
type NoteEdit struct {
	HTML      string `json:"html"`
	PlainText string `json:"plainText"`
}

func (e NoteEdit) plain() string {
	if e.PlainText != "" {
		return e.PlainText
	}
	return textproj.PlainText(e.HTML)
}

// Extraction is the text pulled out of an uploaded file.
type Extraction struct {
	Title     string
	Text      string
	PageCount *int
}

// TextExtractor turns an uploaded binary into source text.
type TextExtractor interface {
	Extract(ctx context.Context, name string, data []byte) (Extraction, error)
}

// PlainTextExtractor handles UTF-8 text and Markdown uploads. Frontmatter is
// stripped from the text and its title, if any, is reported.
type PlainTextExtractor struct{}

// Extract implements TextExtractor.
func (PlainTextExtractor) Extract(_ context.Context, name string, data []byte) (Extraction, error) {
	if !utf8.Valid(data) {
		return Extraction{}, fmt.Errorf("extract %s: not UTF-8 text: %w", name, apperr.ErrInvalid)
	}
	doc := textproj.ParseDocument(data)
	return Extraction{Title: doc.Title, Text: doc.Body}, nil
}

// Reply is a structured answer from a Responder.
type Reply struct {
	Content   string
	Citations []models.Citation
}

// Responder answers a prompt grounded on the notebook sources.
type Responder interface {
	Respond(ctx context.Context, prompt string, sources []models.Source) (Reply, error)
}

// AddUpload runs data through ex and adds the result as a source. The kind
// follows the file extension.
func (m *Manager) AddUpload(ctx context.Context, ex TextExtractor, name string, data []byte) (models.Source, error) {
	res, err := ex.Extract(ctx, name, data)
	if err != nil {
		return models.Source{}, fmt.Errorf("notebook: add upload: %w", err)
	}
	kind := models.SourceText
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		kind = models.SourcePDF
	}
	return m.AddSource(SourceInput{
		Kind:      kind,
		Name:      filepath.Base(name),
		Content:   res.Text,
		PageCount: res.PageCount,
	})
}

// Ask records prompt as a user turn, asks r for a reply and records that as
// an assistant turn. A failed reply leaves the user turn in place.
func (m *Manager) Ask(ctx context.Context, r Responder, prompt string) (models.ChatMessage, error) {
	if _, err := m.AppendMessage(models.RoleUser, prompt, nil); err != nil {
		return models.ChatMessage{}, err
	}
	var sources []models.Source
	if snap := m.Snapshot(); snap != nil {
		sources = snap.Sources
	}
	reply, err := r.Respond(ctx, prompt, sources)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("notebook: ask: %w", err)
	}
	return m.AppendMessage(models.RoleAssistant, reply.Content, reply.Citations)
}
