package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/codec"
	"github.com/starford/quire/internal/models"
)

// Export file naming.
const (
	ExportPrefix    = "quire-"
	ExportExtension = ".json"
)

// MaxImportBytes bounds how much of an import file is read.
const MaxImportBytes = 64 << 20

// ExportFile is a downloadable notebook snapshot.
type ExportFile struct {
	Name string
	Data []byte
}

// Export wraps a snapshot of nb in a versioned envelope rendered as
// indented JSON.
func (c *Coordinator) Export(nb *models.Notebook) (*ExportFile, error) {
	rec, err := codec.Serialize(nb)
	if err != nil {
		return nil, err
	}
	now := c.now()
	env := codec.Envelope{
		SchemaVersion: codec.SchemaVersion,
		ExportedAt:    codec.FormatTime(now),
		AppVersion:    c.appVersion,
		Notebook:      *rec,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("persist: encode export: %w: %w", apperr.ErrSerialization, err)
	}
	return &ExportFile{
		Name: ExportFilename(nb.Title, now.UTC().Format("2006-01-02")),
		Data: append(data, '\n'),
	}, nil
}

// ExportFilename builds prefix + lower-case title + date + extension. Every
// character of the title outside a-z and 0-9 becomes a dash.
func ExportFilename(title, date string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	name := b.String()
	if name == "" {
		name = "notebook"
	}
	return ExportPrefix + name + "-" + date + ExportExtension
}

// Import reads an export file, validates it, and persists the embedded
// notebook as the current one, replacing whatever was stored. Any pending
// debounced write is dropped.
func (c *Coordinator) Import(ctx context.Context, r io.Reader) (*models.Notebook, error) {
	nb, err := DecodeExport(r)
	if err != nil {
		c.logger.Warn("persist: import rejected", slog.String("error", err.Error()))
		c.recordError(err)
		return nil, err
	}
	if err := c.replace(ctx, nb); err != nil {
		return nil, err
	}
	c.logger.Info("persist: notebook imported",
		slog.String("notebook_id", nb.ID), slog.String("title", nb.Title))
	return nb, nil
}

// DecodeExport parses and validates an export file without persisting it.
func DecodeExport(r io.Reader) (*models.Notebook, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImportBytes))
	if err != nil {
		return nil, fmt.Errorf("persist: read import: %w: %w", apperr.ErrImportInvalid, err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("persist: parse import: %w: %w", apperr.ErrImportInvalid, err)
	}
	if !codec.ValidateImport(raw) {
		return nil, fmt.Errorf("persist: import does not look like a notebook export: %w", apperr.ErrImportInvalid)
	}
	var env codec.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("persist: decode import: %w: %w", apperr.ErrImportInvalid, err)
	}
	if env.SchemaVersion > codec.SchemaVersion {
		return nil, fmt.Errorf("persist: import schema version %d is newer than %d: %w",
			env.SchemaVersion, codec.SchemaVersion, apperr.ErrImportInvalid)
	}
	nb, err := codec.Deserialize(&env.Notebook)
	if err != nil {
		return nil, fmt.Errorf("persist: import: %w: %w", apperr.ErrImportInvalid, err)
	}
	return nb, nil
}

// replace writes nb outside the debounce path. Saves pending or in flight
// when it starts, and saves issued while it runs, are never written after it.
func (c *Coordinator) replace(ctx context.Context, nb *models.Notebook) error {
	c.epoch.Add(1)
	c.deb.Cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	defer c.epoch.Add(1)
	return c.write(ctx, nb)
}
