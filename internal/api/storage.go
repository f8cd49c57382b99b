package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/starford/quire/internal/codec"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/persist"
)

// StorageStatus handles GET /api/storage.
//
//	@Summary		Save state, capacity, breakdown and last error
//	@Tags			storage
//	@Produce		json
//	@Success		200	{object}	StorageResponse
//	@Security		BearerAuth
//	@Router			/storage [get]
func (h *Handler) StorageStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StorageResponse{
		Status:    h.store.Status(),
		Breakdown: codec.SizeBreakdown(h.nb.Snapshot()),
	})
}

// DismissError handles DELETE /api/storage/error.
//
//	@Summary		Dismiss the last persistence error
//	@Tags			storage
//	@Success		204	"Dismissed"
//	@Security		BearerAuth
//	@Router			/storage/error [delete]
func (h *Handler) DismissError(w http.ResponseWriter, _ *http.Request) {
	h.store.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

// Flush handles POST /api/storage/flush.
//
//	@Summary		Write any pending change now
//	@Tags			storage
//	@Produce		json
//	@Success		200	{object}	persist.Status
//	@Failure		503	{object}	errResponse
//	@Failure		507	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/storage/flush [post]
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Flush(r.Context()); err != nil {
		writeError(w, "flush", err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Status())
}

// ClearStorage handles DELETE /api/storage. Stored data is removed and the
// active notebook replaced by an empty one that is not saved until changed.
//
//	@Summary		Delete all stored data
//	@Tags			storage
//	@Success		204	"Cleared"
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/storage [delete]
func (h *Handler) ClearStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearAll(r.Context()); err != nil {
		writeError(w, "clear storage", err)
		return
	}
	h.nb.Replace(models.New("", time.Now().UTC()))
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/export.
//
//	@Summary		Download the notebook as an export file
//	@Tags			storage
//	@Produce		json
//	@Success		200	{file}	file
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, _ *http.Request) {
	nb := h.nb.Snapshot()
	if nb == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("notebook not loaded"))
		return
	}
	file, err := h.store.Export(nb)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.Header().Set("Content-Length", fmt.Sprint(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// Import handles POST /api/import. The body is an export file, either raw or
// as the "file" field of a multipart form.
//
//	@Summary		Replace the notebook with an imported one
//	@Tags			storage
//	@Accept			json,mpfd
//	@Produce		json
//	@Success		200	{object}	ImportResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var body io.Reader
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		_, data, ok := readUpload(w, r)
		if !ok {
			return
		}
		body = bytes.NewReader(data)
	} else {
		body = http.MaxBytesReader(w, r.Body, persist.MaxImportBytes)
	}
	nb, err := h.store.Import(r.Context(), body)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	h.nb.Replace(nb)
	writeJSON(w, http.StatusOK, ImportResponse{Notebook: nb})
}
