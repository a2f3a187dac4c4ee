package handlers

import (
	"errors"
	"net/http"
	"os"

	"gallery/internal/imagepipe"
	"gallery/internal/store"
)

// Metadata serves the AI generation record recomputed from the stored
// file's embedded metadata. The file is the source of truth; nothing is
// read from the database beyond the path.
func (h *ArtworkHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	artwork, ok := h.artworkFile(w, r)
	if !ok {
		return
	}

	meta := imagepipe.ExtractAIMetadata(artwork.ImagePath)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"metadata": meta.Fields,
		"source":   meta.Source,
		"warnings": meta.Warnings,
	})
}

// MetadataAll serves every embedded metadata entry under namespaced
// png_*/exif_* keys, for bulk inspection and debugging.
func (h *ArtworkHandler) MetadataAll(w http.ResponseWriter, r *http.Request) {
	artwork, ok := h.artworkFile(w, r)
	if !ok {
		return
	}

	flat, warnings := imagepipe.ExtractFlat(artwork.ImagePath)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"metadata": flat,
		"warnings": warnings,
	})
}

// artworkFile resolves the artwork and checks its file still exists;
// writes the error response itself when it doesn't.
func (h *ArtworkHandler) artworkFile(w http.ResponseWriter, r *http.Request) (*store.Artwork, bool) {
	id, err := artworkID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid artwork id")
		return nil, false
	}

	artwork, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Artwork not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load artwork")
		return nil, false
	}

	if _, err := os.Stat(artwork.ImagePath); err != nil {
		respondError(w, http.StatusNotFound, "File missing")
		return nil, false
	}
	return artwork, true
}
