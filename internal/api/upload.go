package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

const maxUploadBytes = 50 << 20 // 50 MB

// safeName validates that the upload filename is a plain name (no path
// separators, no traversal) and returns it cleaned.
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return cleaned, nil
}

// readUpload returns the "file" field of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return "", nil, false
	}
	defer file.Close()

	name, err := safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return "", nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return "", nil, false
	}
	return name, data, true
}

// uploadSource handles the multipart form of POST /api/sources.
func (h *Handler) uploadSource(w http.ResponseWriter, r *http.Request) {
	name, data, ok := readUpload(w, r)
	if !ok {
		return
	}
	src, err := h.nb.AddUpload(r.Context(), h.extractor, name, data)
	if err != nil {
		writeError(w, "upload source", err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}
