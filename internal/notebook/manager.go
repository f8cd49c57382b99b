// Package notebook owns the active notebook and every mutation applied to
// it. Each mutation produces a new notebook value and schedules a save.
package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/textproj"
)

// Saver persists notebook snapshots. persist.Coordinator implements it.
type Saver interface {
	Load(ctx context.Context) (*models.Notebook, bool)
	Save(nb *models.Notebook)
}

// Manager holds the single active notebook. It refuses mutations until Init
// has loaded whatever was stored, so an empty notebook can never be saved
// over existing data.
type Manager struct {
	saver  Saver
	logger *slog.Logger
	now    func() time.Time

	once sync.Once

	mu        sync.Mutex
	nb        *models.Notebook
	listeners []func(*models.Notebook)
}

// New returns a manager backed by saver. Call Init before mutating.
func New(saver Saver, opts ...Option) *Manager {
	m := &Manager{
		saver:  saver,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads the stored notebook exactly once. When nothing usable is
// stored it starts from an empty notebook without saving it.
func (m *Manager) Init(ctx context.Context) *models.Notebook {
	m.once.Do(func() {
		nb, ok := m.saver.Load(ctx)
		if !ok {
			nb = models.New("", m.now().UTC())
			m.logger.Info("notebook: starting empty", slog.String("notebook_id", nb.ID))
		}
		m.mu.Lock()
		m.nb = nb
		m.mu.Unlock()
	})
	return m.Snapshot()
}

// Loaded reports whether Init (or Replace) has run.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nb != nil
}

// Snapshot returns a deep copy of the active notebook, or nil before Init.
func (m *Manager) Snapshot() *models.Notebook {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nb.Clone()
}

// OnChange registers fn to receive a snapshot after every change. The
// snapshot is shared between listeners and must not be modified.
func (m *Manager) OnChange(fn func(*models.Notebook)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// SourceInput describes a source to add.
type SourceInput struct {
	Kind      models.SourceKind
	Name      string
	Content   string
	PageCount *int
	URL       string
}

// AddSource appends a source.
func (m *Manager) AddSource(in SourceInput) (models.Source, error) {
	if !in.Kind.Valid() {
		return models.Source{}, fmt.Errorf("notebook: add source: kind %q: %w", in.Kind, apperr.ErrInvalid)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Source{}, fmt.Errorf("notebook: add source: empty name: %w", apperr.ErrInvalid)
	}
	var src models.Source
	_, err := m.mutate("add source", func(nb *models.Notebook, now time.Time) error {
		src = models.Source{
			ID:      uuid.NewString(),
			Kind:    in.Kind,
			Name:    name,
			Content: in.Content,
			Metadata: models.SourceMetadata{
				PageCount: in.PageCount,
				URL:       in.URL,
				AddedAt:   now,
			},
		}
		nb.Sources = append(nb.Sources, src)
		return nil
	})
	return src, err
}

// RemoveSource deletes a source. Citations that point at it are kept.
func (m *Manager) RemoveSource(id string) error {
	_, err := m.mutate("remove source", func(nb *models.Notebook, _ time.Time) error {
		i := slices.IndexFunc(nb.Sources, func(s models.Source) bool { return s.ID == id })
		if i < 0 {
			return fmt.Errorf("source %q: %w", id, apperr.ErrNotFound)
		}
		nb.Sources = slices.Delete(nb.Sources, i, i+1)
		return nil
	})
	return err
}

// AppendMessage adds a chat turn at the end of the conversation.
func (m *Manager) AppendMessage(role models.Role, content string, citations []models.Citation) (models.ChatMessage, error) {
	if !role.Valid() {
		return models.ChatMessage{}, fmt.Errorf("notebook: append message: role %q: %w", role, apperr.ErrInvalid)
	}
	var msg models.ChatMessage
	_, err := m.mutate("append message", func(nb *models.Notebook, now time.Time) error {
		msg = models.ChatMessage{
			ID:        uuid.NewString(),
			Role:      role,
			Content:   content,
			Timestamp: now,
			Citations: slices.Clone(citations),
		}
		nb.Chat = append(nb.Chat, msg)
		return nil
	})
	msg.Citations = slices.Clone(msg.Citations)
	return msg, err
}

// ClearChat drops the whole conversation.
func (m *Manager) ClearChat() error {
	_, err := m.mutate("clear chat", func(nb *models.Notebook, _ time.Time) error {
		nb.Chat = []models.ChatMessage{}
		return nil
	})
	return err
}

// AddOutput appends a studio output. Content is stored as given; it only has
// to be valid JSON.
func (m *Manager) AddOutput(kind models.OutputKind, title string, content json.RawMessage) (models.StudioOutput, error) {
	if !kind.Valid() {
		return models.StudioOutput{}, fmt.Errorf("notebook: add output: kind %q: %w", kind, apperr.ErrInvalid)
	}
	if len(content) == 0 {
		content = json.RawMessage("null")
	}
	if !json.Valid(content) {
		return models.StudioOutput{}, fmt.Errorf("notebook: add output: content is not JSON: %w", apperr.ErrInvalid)
	}
	var out models.StudioOutput
	_, err := m.mutate("add output", func(nb *models.Notebook, now time.Time) error {
		out = models.StudioOutput{
			ID:          uuid.NewString(),
			Kind:        kind,
			Title:       strings.TrimSpace(title),
			Content:     append(json.RawMessage(nil), content...),
			GeneratedAt: now,
		}
		nb.Outputs = append(nb.Outputs, out)
		return nil
	})
	return out, err
}

// RemoveOutput deletes a studio output.
func (m *Manager) RemoveOutput(id string) error {
	_, err := m.mutate("remove output", func(nb *models.Notebook, _ time.Time) error {
		i := slices.IndexFunc(nb.Outputs, func(o models.StudioOutput) bool { return o.ID == id })
		if i < 0 {
			return fmt.Errorf("output %q: %w", id, apperr.ErrNotFound)
		}
		nb.Outputs = slices.Delete(nb.Outputs, i, i+1)
		return nil
	})
	return err
}

// AddNote inserts a note at the head of the list, newest first. An empty
// title is derived from the plain-text content.
func (m *Manager) AddNote(title string, edit NoteEdit) (models.Note, error) {
	plain := edit.plain()
	title = strings.TrimSpace(title)
	if title == "" {
		title = textproj.DeriveTitle(plain)
	}
	var note models.Note
	_, err := m.mutate("add note", func(nb *models.Notebook, now time.Time) error {
		note = models.Note{
			ID:          uuid.NewString(),
			Title:       title,
			Content:     plain,
			RichContent: edit.HTML,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		nb.Notes = slices.Insert(nb.Notes, 0, note)
		return nil
	})
	return note, err
}

// NoteUpdate carries the fields to change; nil fields are left alone.
type NoteUpdate struct {
	Title *string
	Edit  *NoteEdit
}

// UpdateNote changes a note in place, keeping its position.
func (m *Manager) UpdateNote(id string, upd NoteUpdate) (models.Note, error) {
	var note models.Note
	_, err := m.mutate("update note", func(nb *models.Notebook, now time.Time) error {
		i := slices.IndexFunc(nb.Notes, func(n models.Note) bool { return n.ID == id })
		if i < 0 {
			return fmt.Errorf("note %q: %w", id, apperr.ErrNotFound)
		}
		n := nb.Notes[i]
		if upd.Edit != nil {
			n.Content = upd.Edit.plain()
			n.RichContent = upd.Edit.HTML
		}
		if upd.Title != nil {
			n.Title = strings.TrimSpace(*upd.Title)
			if n.Title == "" {
				n.Title = textproj.DeriveTitle(n.Content)
			}
		}
		n.UpdatedAt = maxTime(now, n.UpdatedAt)
		nb.Notes[i] = n
		note = n
		return nil
	})
	return note, err
}

// RemoveNote deletes a note.
func (m *Manager) RemoveNote(id string) error {
	_, err := m.mutate("remove note", func(nb *models.Notebook, _ time.Time) error {
		i := slices.IndexFunc(nb.Notes, func(n models.Note) bool { return n.ID == id })
		if i < 0 {
			return fmt.Errorf("note %q: %w", id, apperr.ErrNotFound)
		}
		nb.Notes = slices.Delete(nb.Notes, i, i+1)
		return nil
	})
	return err
}

// Rename sets the notebook title.
func (m *Manager) Rename(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("notebook: rename: empty title: %w", apperr.ErrInvalid)
	}
	_, err := m.mutate("rename", func(nb *models.Notebook, _ time.Time) error {
		nb.Title = title
		return nil
	})
	return err
}

// Reset replaces the active notebook with a new empty one and saves it.
func (m *Manager) Reset() (*models.Notebook, error) {
	return m.mutate("reset", func(nb *models.Notebook, now time.Time) error {
		*nb = *models.New("", now)
		return nil
	})
}

// Replace adopts nb, typically one that was just imported and persisted, as
// the active notebook. It does not save, and it satisfies Init.
func (m *Manager) Replace(nb *models.Notebook) {
	m.once.Do(func() {})
	m.mu.Lock()
	m.nb = nb.Clone()
	snap := m.nb.Clone()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	m.logger.Info("notebook: replaced", slog.String("notebook_id", nb.ID))
	m.emit(listeners, snap)
}

// mutate applies fn to a copy of the active notebook, stamps UpdatedAt so it
// never moves backwards, installs the copy and schedules a save.
func (m *Manager) mutate(op string, fn func(nb *models.Notebook, now time.Time) error) (*models.Notebook, error) {
	m.mu.Lock()
	if m.nb == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("notebook: %s: %w", op, apperr.ErrNotLoaded)
	}
	now := m.now().UTC()
	next := m.nb.Clone()
	if err := fn(next, now); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("notebook: %s: %w", op, err)
	}
	if op != "reset" {
		next.UpdatedAt = maxTime(now, m.nb.UpdatedAt)
	}
	m.nb = next
	snap := next.Clone()
	// Saving under the lock keeps snapshots reaching the saver in order.
	m.saver.Save(snap)
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	m.logger.Debug("notebook: changed", slog.String("op", op), slog.String("notebook_id", snap.ID))
	m.emit(listeners, snap)
	return snap, nil
}

func (m *Manager) emit(listeners []func(*models.Notebook), snap *models.Notebook) {
	for _, fn := range listeners {
		fn(snap)
	}
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
