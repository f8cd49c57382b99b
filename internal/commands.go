package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/quire/internal/codec"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/persist"
)

// StdoutPath makes Export write the file to the command's output stream.
const StdoutPath = "-"

// RunMCP serves the notebook over MCP on stdin/stdout until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	st, err := openStack(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info("MCP server starting on stdio")
	if err := mcpserver.New(st.nb, st.store, app.config.App.Version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

// Export writes the stored notebook as an export file. out may be a file, a
// directory (the file gets its generated name), StdoutPath, or empty for the
// current directory. It returns the path written.
func Export(ctx context.Context, w io.Writer, out string, opts ...Option) (string, error) {
	return withStack(ctx, opts, func(st *stack) (string, error) {
		file, err := st.store.Export(st.nb.Snapshot())
		if err != nil {
			return "", err
		}
		if out == StdoutPath {
			_, err := w.Write(file.Data)
			return StdoutPath, err
		}

		path := out
		if path == "" {
			path = file.Name
		} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = filepath.Join(path, file.Name)
		}
		if err := os.WriteFile(path, file.Data, 0o644); err != nil {
			return "", fmt.Errorf("export: write %s: %w", path, err)
		}
		fmt.Fprintf(w, "exported %s to %s\n", notebookSummary(st.nb.Snapshot()), path)
		return path, nil
	})
}

// Import replaces the stored notebook with the export file at path.
func Import(ctx context.Context, w io.Writer, path string, opts ...Option) error {
	_, err := withStack(ctx, opts, func(st *stack) (string, error) {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("import: %w", err)
		}
		defer f.Close()

		nb, err := st.store.Import(ctx, f)
		if err != nil {
			return "", err
		}
		st.nb.Replace(nb)
		fmt.Fprintf(w, "imported %s\n", notebookSummary(nb))
		return "", nil
	})
	return err
}

// StatusReport is the output of the status command.
type StatusReport struct {
	persist.Status
	Notebook  string          `json:"notebook"`
	Breakdown codec.Breakdown `json:"breakdown"`
}

// Status prints save state, capacity and the size breakdown as JSON.
func Status(ctx context.Context, w io.Writer, opts ...Option) error {
	_, err := withStack(ctx, opts, func(st *stack) (string, error) {
		nb := st.nb.Snapshot()
		report := StatusReport{
			Status:    st.store.Status(),
			Notebook:  notebookSummary(nb),
			Breakdown: codec.SizeBreakdown(nb),
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return "", enc.Encode(report)
	})
	return err
}

// Clear deletes all stored data.
func Clear(ctx context.Context, w io.Writer, opts ...Option) error {
	_, err := withStack(ctx, opts, func(st *stack) (string, error) {
		if err := st.store.ClearAll(ctx); err != nil {
			return "", err
		}
		fmt.Fprintln(w, "storage cleared")
		return "", nil
	})
	return err
}

// withStack runs fn against an opened stack, logging to stderr.
func withStack(ctx context.Context, opts []Option, fn func(st *stack) (string, error)) (string, error) {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return "", err
	}
	logger := app.newLogger()

	st, err := openStack(ctx, app.config, logger)
	if err != nil {
		return "", err
	}
	defer st.Close()

	if err := st.store.LastError(); err != nil {
		logger.Warn("storage reported an error on load", slog.String("error", err.Error()))
	}
	return fn(st)
}
