// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the active Quire notebook to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/codec"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notebook"
	"github.com/starford/quire/internal/persist"
)

// ExportFormatURI is the resource describing the export file format.
const ExportFormatURI = "quire://export-format"

// Server wraps the MCP server with Quire tools.
type Server struct {
	mcp   *server.MCPServer
	nb    *notebook.Manager
	store *persist.Coordinator
}

// New creates a new MCP server with all Quire tools registered. nb must be
// initialized.
func New(nb *notebook.Manager, store *persist.Coordinator, version string) *Server {
	s := &Server{nb: nb, store: store}

	s.mcp = server.NewMCPServer(
		"Quire",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_notebook",
		mcp.WithDescription("Summary of the active notebook: title, identity and collection sizes."),
	), s.getNotebook)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the sources of the notebook (id, kind, name)."),
	), s.listSources)

	s.mcp.AddTool(mcp.NewTool("read_source",
		mcp.WithDescription("Read the full text of a source."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Source ID from list_sources")),
	), s.readSource)

	s.mcp.AddTool(mcp.NewTool("add_source",
		mcp.WithDescription("Add a text source fetched from an http(s) URL or a base64 data: URI. "+
			"HTML pages are reduced to plain text."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:text/plain;base64,... URI")),
		mcp.WithString("name", mcp.Description("Display name (defaults to the URL file name)")),
	), s.addSource)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, newest first (id, title)."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the plain-text content of a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID from list_notes")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Create a note at the top of the notebook. The title is derived "+
			"from the first line when omitted."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Plain-text or Markdown note body")),
		mcp.WithString("title", mcp.Description("Optional title")),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("search_notebook",
		mcp.WithDescription("Search notes, sources, outputs and chat. Every word must match."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotebook)

	s.mcp.AddTool(mcp.NewTool("storage_status",
		mcp.WithDescription("Save state, last save time, storage capacity and per-collection sizes."),
	), s.storageStatus)

	s.mcp.AddResource(
		mcp.NewResource(ExportFormatURI, "Export Format",
			mcp.WithResourceDescription("Structure of Quire notebook export files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readExportFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) snapshot() (*models.Notebook, *mcp.CallToolResult) {
	nb := s.nb.Snapshot()
	if nb == nil {
		return nil, mcp.NewToolResultError("notebook not loaded")
	}
	return nb, nil
}

type notebookSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Sources   int    `json:"sources"`
	Chat      int    `json:"chat"`
	Outputs   int    `json:"outputs"`
	Notes     int    `json:"notes"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func (s *Server) getNotebook(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, errRes := s.snapshot()
	if errRes != nil {
		return errRes, nil
	}
	return jsonResult(notebookSummary{
		ID:        nb.ID,
		Title:     nb.Title,
		Sources:   len(nb.Sources),
		Chat:      len(nb.Chat),
		Outputs:   len(nb.Outputs),
		Notes:     len(nb.Notes),
		CreatedAt: codec.FormatTime(nb.CreatedAt),
		UpdatedAt: codec.FormatTime(nb.UpdatedAt),
	})
}

func (s *Server) listSources(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, errRes := s.snapshot()
	if errRes != nil {
		return errRes, nil
	}
	if len(nb.Sources) == 0 {
		return mcp.NewToolResultText("no sources"), nil
	}
	lines := make([]string, len(nb.Sources))
	for i, src := range nb.Sources {
		lines[i] = fmt.Sprintf("%s\t%s\t%s", src.ID, src.Kind, src.Name)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readSource(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nb, errRes := s.snapshot()
	if errRes != nil {
		return errRes, nil
	}
	for _, src := range nb.Sources {
		if src.ID == id {
			return mcp.NewToolResultText(src.Content), nil
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("source not found: %s", id)), nil
}

func (s *Server) listNotes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, errRes := s.snapshot()
	if errRes != nil {
		return errRes, nil
	}
	if len(nb.Notes) == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}
	lines := make([]string, len(nb.Notes))
	for i, n := range nb.Notes {
		lines[i] = n.ID + "\t" + n.Title
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nb, errRes := s.snapshot()
	if errRes != nil {
		return errRes, nil
	}
	for _, n := range nb.Notes {
		if n.ID == id {
			return mcp.NewToolResultText(n.Content), nil
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("note not found: %s", id)), nil
}

func (s *Server) addNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title := ""
	if v, tErr := req.RequireString("title"); tErr == nil {
		title = v
	}
	note, err := s.nb.AddNote(title, notebook.NoteEdit{PlainText: content})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s %s", note.ID, note.Title)), nil
}

func (s *Server) searchNotebook(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.nb.Search(query, 20))
}

type storageReport struct {
	persist.Status
	Breakdown codec.Breakdown `json:"breakdown"`
}

func (s *Server) storageStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(storageReport{
		Status:    s.store.Status(),
		Breakdown: codec.SizeBreakdown(s.nb.Snapshot()),
	})
}

func (s *Server) readExportFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ExportFormatURI,
			MIMEType: "text/markdown",
			Text:     ExportFormatContract,
		},
	}, nil
}
