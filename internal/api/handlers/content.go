package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/dom/pack-minter/internal/content"
	"github.com/go-chi/chi/v5"
)

// ContentHandler serves objects from the local content store.
type ContentHandler struct {
	store *content.LocalStore
}

func NewContentHandler(store *content.LocalStore) *ContentHandler {
	return &ContentHandler{store: store}
}

func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")

	data, err := h.store.Get(digest)
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to read content", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(data)
}
