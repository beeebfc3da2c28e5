package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sahana-project/ewaste-api/internal/storage"
)

// ImageHandler streams stored images when the API serves them itself.
type ImageHandler struct {
	images *storage.Storage
	log    *slog.Logger
}

func NewImageHandler(images *storage.Storage, log *slog.Logger) *ImageHandler {
	return &ImageHandler{images: images, log: log}
}

// ImageRouter serves GET /{key...} below the mount point.
func ImageRouter(r chi.Router, images *storage.Storage, log *slog.Logger) {
	handler := NewImageHandler(images, log)
	r.Get("/*", handler.Serve)
}

func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	contentType, ok := storage.ImageContentType(key)
	if key == "" || !ok || strings.Contains(key, "..") {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	body, err := h.images.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		h.log.ErrorContext(r.Context(), "failed to open image", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load image")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.WarnContext(r.Context(), "image stream interrupted", "key", key, "error", err)
	}
}
