package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestQuickCache_WriteRead(t *testing.T) {
	dir := t.TempDir()
	q := NewQuickCache(dir)
	want := Meta{LastSavedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ApproximateSizeBytes: 42}
	if err := q.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok := q.Read()
	if !ok || !got.LastSavedAt.Equal(want.LastSavedAt) || got.ApproximateSizeBytes != 42 {
		t.Errorf("Read = %+v, %v", got, ok)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(dir, ".quire-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestQuickCache_RemoveMissing(t *testing.T) {
	q := NewQuickCache(t.TempDir())
	if err := q.Remove(); err != nil {
		t.Errorf("Remove on missing file: %v", err)
	}
	if _, ok := q.Read(); ok {
		t.Error("expected no meta")
	}
}
