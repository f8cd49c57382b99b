package api

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/notebook"
	"github.com/starford/quire/internal/persist"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	nb        *notebook.Manager
	store     *persist.Coordinator
	extractor notebook.TextExtractor
}

// NewHandler creates a new Handler. A nil extractor accepts plain text
// uploads only.
func NewHandler(nb *notebook.Manager, store *persist.Coordinator, extractor notebook.TextExtractor) *Handler {
	if extractor == nil {
		extractor = notebook.PlainTextExtractor{}
	}
	return &Handler{nb: nb, store: store, extractor: extractor}
}

// GetNotebook handles GET /api/notebook.
//
//	@Summary		Get the active notebook
//	@Tags			notebook
//	@Produce		json
//	@Success		200	{object}	models.Notebook
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook [get]
func (h *Handler) GetNotebook(w http.ResponseWriter, _ *http.Request) {
	nb := h.nb.Snapshot()
	if nb == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("notebook not loaded"))
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// RenameNotebook handles PUT /api/notebook/title.
//
//	@Summary		Rename the notebook
//	@Tags			notebook
//	@Accept			json
//	@Param			body	body	RenameRequest	true	"New title"
//	@Success		204		"Renamed"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook/title [put]
func (h *Handler) RenameNotebook(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.nb.Rename(req.Title); err != nil {
		writeError(w, "rename notebook", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetNotebook handles POST /api/notebook/reset.
//
//	@Summary		Replace the notebook with a new empty one
//	@Tags			notebook
//	@Produce		json
//	@Success		200	{object}	models.Notebook
//	@Security		BearerAuth
//	@Router			/notebook/reset [post]
func (h *Handler) ResetNotebook(w http.ResponseWriter, _ *http.Request) {
	nb, err := h.nb.Reset()
	if err != nil {
		writeError(w, "reset notebook", err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// AddSource handles POST /api/sources. A multipart body with a "file" field
// is run through the text extractor; otherwise the body is AddSourceRequest.
//
//	@Summary		Add a source
//	@Tags			sources
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			body	body		AddSourceRequest	false	"Source to add"
//	@Param			file	formData	file				false	"Document to upload"
//	@Success		201		{object}	models.Source
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources [post]
func (h *Handler) AddSource(w http.ResponseWriter, r *http.Request) {
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		h.uploadSource(w, r)
		return
	}
	var req AddSourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	src, err := h.nb.AddSource(notebook.SourceInput{
		Kind:      req.Kind,
		Name:      req.Name,
		Content:   req.Content,
		PageCount: req.PageCount,
		URL:       req.URL,
	})
	if err != nil {
		writeError(w, "add source", err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

// RemoveSource handles DELETE /api/sources/{id}.
//
//	@Summary		Remove a source
//	@Tags			sources
//	@Param			id	path	string	true	"Source ID"
//	@Success		204	"Source removed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id} [delete]
func (h *Handler) RemoveSource(w http.ResponseWriter, r *http.Request) {
	if err := h.nb.RemoveSource(chi.URLParam(r, "id")); err != nil {
		writeError(w, "remove source", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AppendMessage handles POST /api/chat.
//
//	@Summary		Append a chat turn
//	@Tags			chat
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AppendMessageRequest	true	"Chat turn"
//	@Success		201		{object}	models.ChatMessage
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat [post]
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var req AppendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	msg, err := h.nb.AppendMessage(req.Role, req.Content, req.Citations)
	if err != nil {
		writeError(w, "append message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ClearChat handles DELETE /api/chat.
//
//	@Summary		Clear the conversation
//	@Tags			chat
//	@Success		204	"Chat cleared"
//	@Security		BearerAuth
//	@Router			/chat [delete]
func (h *Handler) ClearChat(w http.ResponseWriter, _ *http.Request) {
	if err := h.nb.ClearChat(); err != nil {
		writeError(w, "clear chat", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddOutput handles POST /api/outputs.
//
//	@Summary		Store a generated studio output
//	@Tags			outputs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddOutputRequest	true	"Output"
//	@Success		201		{object}	models.StudioOutput
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/outputs [post]
func (h *Handler) AddOutput(w http.ResponseWriter, r *http.Request) {
	var req AddOutputRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.nb.AddOutput(req.Kind, req.Title, req.Content)
	if err != nil {
		writeError(w, "add output", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// RemoveOutput handles DELETE /api/outputs/{id}.
//
//	@Summary		Remove a studio output
//	@Tags			outputs
//	@Param			id	path	string	true	"Output ID"
//	@Success		204	"Output removed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/outputs/{id} [delete]
func (h *Handler) RemoveOutput(w http.ResponseWriter, r *http.Request) {
	if err := h.nb.RemoveOutput(chi.URLParam(r, "id")); err != nil {
		writeError(w, "remove output", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddNote handles POST /api/notes.
//
//	@Summary		Create a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req AddNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.nb.AddNote(req.Title, notebook.NoteEdit{HTML: req.HTML, PlainText: req.PlainText})
	if err != nil {
		writeError(w, "add note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Update a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note ID"
//	@Param			body	body		UpdateNoteRequest	true	"Changed fields"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	upd := notebook.NoteUpdate{Title: req.Title}
	if req.HTML != nil || req.PlainText != nil {
		edit := notebook.NoteEdit{}
		if req.HTML != nil {
			edit.HTML = *req.HTML
		}
		if req.PlainText != nil {
			edit.PlainText = *req.PlainText
		}
		upd.Edit = &edit
	}
	note, err := h.nb.UpdateNote(chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// RemoveNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note ID"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) RemoveNote(w http.ResponseWriter, r *http.Request) {
	if err := h.nb.RemoveNote(chi.URLParam(r, "id")); err != nil {
		writeError(w, "remove note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Search notes, sources, outputs and chat
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, SearchResponse{Results: h.nb.Search(q, limit)})
}
