package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"gallery/internal/store"
)

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]any{"success": false, "message": message})
}

// artworkView is the wire shape of an artwork: the stored row plus the
// derived thumbnail URL.
type artworkView struct {
	store.Artwork
	ThumbnailPath string `json:"thumbnail_path"`
}

func viewOf(a store.Artwork) artworkView {
	return artworkView{
		Artwork:       a,
		ThumbnailPath: "/thumbnail/" + filepath.Base(a.ImagePath),
	}
}

func viewsOf(artworks []store.Artwork) []artworkView {
	views := make([]artworkView, 0, len(artworks))
	for _, a := range artworks {
		views = append(views, viewOf(a))
	}
	return views
}

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
}

func fileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
