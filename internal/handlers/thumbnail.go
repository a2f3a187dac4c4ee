package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// ServeThumbnail serves a thumbnail by filename, generating it on demand
// when the original exists but the thumbnail doesn't. Falls back to the
// original image if thumbnailing fails.
func (h *ArtworkHandler) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	// Base strips any path traversal out of the URL parameter
	filename := filepath.Base(chi.URLParam(r, "filename"))
	thumbPath := filepath.Join(h.cfg.ThumbnailsDir, filename)
	originalPath := filepath.Join(h.cfg.UploadsDir, filename)

	if _, err := os.Stat(thumbPath); os.IsNotExist(err) {
		if _, err := os.Stat(originalPath); err == nil {
			if _, err := h.thumbr.Ensure(originalPath); err != nil {
				log.WithError(err).WithField("file", filename).Warn("on-demand thumbnail failed")
			}
		}
	}

	if _, err := os.Stat(thumbPath); err == nil {
		http.ServeFile(w, r, thumbPath)
		return
	}
	if _, err := os.Stat(originalPath); err == nil {
		http.ServeFile(w, r, originalPath)
		return
	}
	http.NotFound(w, r)
}
