package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// QuickMetaFile is the name of the metadata mirror inside the data directory.
const QuickMetaFile = "meta.json"

// QuickCache mirrors Meta into a small JSON file so "last saved" status is
// readable without opening the database.
type QuickCache struct {
	path string
}

// NewQuickCache returns a cache writing into dir. The directory must exist.
func NewQuickCache(dir string) *QuickCache {
	return &QuickCache{path: filepath.Join(dir, QuickMetaFile)}
}

// ReadQuickMeta reads the mirrored metadata from dir, reporting false when
// none has been written yet or the file is unreadable.
func ReadQuickMeta(dir string) (Meta, bool) {
	return NewQuickCache(dir).Read()
}

// Read returns the mirrored metadata.
func (q *QuickCache) Read() (Meta, bool) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		return Meta{}, false
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, false
	}
	return m, true
}

// Write atomically writes meta: tmp file → fsync → rename.
func (q *QuickCache) Write(meta Meta) error {
	content, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("storage: encode quick meta: %w", err)
	}
	dir := filepath.Dir(q.path)

	tmp, err := os.CreateTemp(dir, ".quire-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, q.path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Remove deletes the mirror. A missing file is not an error.
func (q *QuickCache) Remove() error {
	if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove quick meta: %w", err)
	}
	return nil
}
