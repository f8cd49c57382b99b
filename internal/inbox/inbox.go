// Package inbox watches a drop folder for notebook export files and imports
// them. Imported files move to imported/, unreadable ones to rejected/.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// Subdirectories of the inbox.
const (
	ImportedDir = "imported"
	RejectedDir = "rejected"
)

// settleDelay is how long a file must stay quiet before it is imported, so
// a copy still in progress is not read half-written.
const settleDelay = 200 * time.Millisecond

// Importer persists an export file as the current notebook.
// persist.Coordinator implements it.
type Importer interface {
	Import(ctx context.Context, r io.Reader) (*models.Notebook, error)
}

// Result describes one processed inbox file. Notebook is nil when Err is set.
type Result struct {
	File     string
	Notebook *models.Notebook
	Err      error
}

// Callback is called after each processed file.
type Callback func(Result)

// Watch imports export files dropped into dir until ctx is cancelled. Files
// already present when it starts are imported first, oldest name first.
//
// A file that fails for a reason other than being an invalid export (for
// example storage being unavailable) is left in place and retried on its
// next write event.
func Watch(ctx context.Context, dir string, imp Importer, logger *slog.Logger, cb Callback) error {
	for _, sub := range []string{dir, filepath.Join(dir, ImportedDir), filepath.Join(dir, RejectedDir)} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("inbox: create %s: %w", sub, err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", dir, err)
	}
	logger.Info("inbox: started", slog.String("dir", dir))

	p := &processor{dir: dir, imp: imp, logger: logger, cb: cb}
	p.scan(ctx)

	// settleTimer debounces bursts of write events per drop.
	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func(path string) {
		pending[path] = struct{}{}
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for path := range pending {
				p.process(ctx, path)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isExportFile(ev.Name) || filepath.Dir(ev.Name) != filepath.Clean(dir) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}

type processor struct {
	dir    string
	imp    Importer
	logger *slog.Logger
	cb     Callback
}

// scan imports files already waiting in the inbox.
func (p *processor) scan(ctx context.Context) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		p.logger.Warn("inbox: scan failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && isExportFile(e.Name()) {
			p.process(ctx, filepath.Join(p.dir, e.Name()))
		}
	}
}

func (p *processor) process(ctx context.Context, path string) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("inbox: open failed", slog.String("file", name), slog.String("error", err.Error()))
		}
		return
	}
	nb, err := p.imp.Import(ctx, f)
	f.Close()

	switch {
	case err == nil:
		p.logger.Info("inbox: imported", slog.String("file", name), slog.String("notebook_id", nb.ID))
		p.move(path, ImportedDir)
	case errors.Is(err, apperr.ErrImportInvalid):
		p.logger.Warn("inbox: rejected", slog.String("file", name), slog.String("error", err.Error()))
		p.move(path, RejectedDir)
	default:
		p.logger.Error("inbox: import failed, will retry on change",
			slog.String("file", name), slog.String("error", err.Error()))
	}
	if p.cb != nil {
		p.cb(Result{File: name, Notebook: nb, Err: err})
	}
}

// move renames path into sub, suffixing a timestamp when the name is taken.
func (p *processor) move(path, sub string) {
	name := filepath.Base(path)
	dst := filepath.Join(p.dir, sub, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		stamp := time.Now().UTC().Format("20060102T150405.000000000")
		dst = filepath.Join(p.dir, sub, strings.TrimSuffix(name, ext)+"-"+stamp+ext)
	}
	if err := os.Rename(path, dst); err != nil {
		p.logger.Warn("inbox: move failed", slog.String("file", name), slog.String("error", err.Error()))
	}
}

func isExportFile(path string) bool {
	base := filepath.Base(path)
	return strings.EqualFold(filepath.Ext(base), ".json") && !strings.HasPrefix(base, ".")
}
