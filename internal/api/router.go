package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notebook.
	r.Get("/notebook", h.GetNotebook)
	r.Put("/notebook/title", h.RenameNotebook)
	r.Post("/notebook/reset", h.ResetNotebook)

	// Sources.
	r.Post("/sources", h.AddSource)
	r.Delete("/sources/{id}", h.RemoveSource)

	// Chat.
	r.Post("/chat", h.AppendMessage)
	r.Delete("/chat", h.ClearChat)

	// Studio outputs.
	r.Post("/outputs", h.AddOutput)
	r.Delete("/outputs/{id}", h.RemoveOutput)

	// Notes.
	r.Post("/notes", h.AddNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.RemoveNote)

	// Search.
	r.Get("/search", h.Search)

	// Storage.
	r.Get("/storage", h.StorageStatus)
	r.Delete("/storage", h.ClearStorage)
	r.Delete("/storage/error", h.DismissError)
	r.Post("/storage/flush", h.Flush)
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
