package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"gallery/internal/config"
	"gallery/internal/imagepipe"
	"gallery/internal/store"
	"gallery/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"
)

type ArtworkHandler struct {
	store  *store.ArtworkStore
	cfg    *config.Config
	thumbr *imagepipe.Thumbnailer
	hub    *ws.Hub
}

func NewArtworkHandler(s *store.ArtworkStore, cfg *config.Config, thumbr *imagepipe.Thumbnailer, hub *ws.Hub) *ArtworkHandler {
	return &ArtworkHandler{store: s, cfg: cfg, thumbr: thumbr, hub: hub}
}

// Create handles a new artwork upload: validate, optimize with metadata
// preserved, persist the file, render the thumbnail, insert the row.
// A failed optimization is not a failed upload; the original bytes are
// stored as-is.
func (h *ArtworkHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, fh, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no image selected")
		return
	}
	defer file.Close()

	if msg := h.validateUpload(fh); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	imagePath, err := h.saveUpload(file, fh)
	if err != nil {
		log.WithError(err).Error("saving upload failed")
		respondError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	if _, err := h.thumbr.Ensure(imagePath); err != nil {
		log.WithError(err).WithField("path", imagePath).Warn("thumbnail creation failed")
	}

	title := titleOrNil(r.FormValue("title"))
	description := descriptionOrDefault(r.FormValue("description"))

	artwork, err := h.store.Insert(r.Context(), title, description, imagePath)
	if err != nil {
		h.removeArtworkFiles(imagePath)
		log.WithError(err).Error("inserting artwork failed")
		respondError(w, http.StatusInternalServerError, "failed to add artwork")
		return
	}

	h.hub.Broadcast(ws.Event{
		Type:         ws.EventArtworkCreated,
		ArtworkID:    artwork.ID,
		Title:        r.FormValue("title"),
		ThumbnailURL: "/thumbnail/" + filepath.Base(artwork.ImagePath),
	})

	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Artwork added successfully!",
		"artwork": viewOf(*artwork),
	})
}

// Update edits an artwork. When a replacement image is supplied the order
// matters: write the new file and thumbnail, update the row, and only then
// delete the old files, so a crash mid-operation leaves the old artwork
// servable.
func (h *ArtworkHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := artworkID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	artwork, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Artwork not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load artwork")
		return
	}

	title := titleOrNil(r.FormValue("title"))
	description := descriptionOrDefault(r.FormValue("description"))

	file, fh, err := r.FormFile("image")
	if err == nil {
		defer file.Close()

		if msg := h.validateUpload(fh); msg != "" {
			respondError(w, http.StatusBadRequest, msg)
			return
		}

		newPath, err := h.saveUpload(file, fh)
		if err != nil {
			log.WithError(err).Error("saving replacement image failed")
			respondError(w, http.StatusInternalServerError, "failed to save image")
			return
		}
		if _, err := h.thumbr.Ensure(newPath); err != nil {
			log.WithError(err).WithField("path", newPath).Warn("thumbnail creation failed")
		}

		if err := h.store.UpdateImage(r.Context(), id, title, description, newPath); err != nil {
			h.removeArtworkFiles(newPath)
			respondError(w, http.StatusInternalServerError, "failed to update artwork")
			return
		}

		// old files go last: the row now points at the new image
		h.removeArtworkFiles(artwork.ImagePath)
		artwork.ImagePath = newPath
	} else {
		// no replacement image: full-form edit still rewrites both text
		// columns, clearing the title when the field came back empty
		if err := h.store.UpdateImage(r.Context(), id, title, description, artwork.ImagePath); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to update artwork")
			return
		}
	}

	artwork.Title = title
	artwork.Description = description

	h.hub.Broadcast(ws.Event{
		Type:         ws.EventArtworkUpdated,
		ArtworkID:    id,
		Title:        r.FormValue("title"),
		ThumbnailURL: "/thumbnail/" + filepath.Base(artwork.ImagePath),
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Artwork updated successfully!",
		"artwork": viewOf(*artwork),
	})
}

// UpdateText handles the lightweight PATCH used for inline editing: only
// title and description are accepted.
func (h *ArtworkHandler) UpdateText(w http.ResponseWriter, r *http.Request) {
	id, err := artworkID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	var fields map[string]*string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondError(w, http.StatusBadRequest, "no data provided")
		return
	}
	for key := range fields {
		if key != "title" && key != "description" {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid field: %s. Only title and description are allowed.", key))
			return
		}
	}
	if len(fields) == 0 {
		respondError(w, http.StatusBadRequest, "no valid fields provided")
		return
	}

	titleVal, hasTitle := fields["title"]
	descVal, hasDesc := fields["description"]

	err = h.store.UpdateText(r.Context(), id,
		normalizeText(titleVal), hasTitle, normalizeText(descVal), hasDesc)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Artwork not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update artwork")
		return
	}

	artwork, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load artwork")
		return
	}

	h.hub.Broadcast(ws.Event{Type: ws.EventArtworkUpdated, ArtworkID: id})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"artwork": viewOf(*artwork),
	})
}

// Delete removes the row first, then the files; a crash in between leaves
// harmless orphan files rather than a row pointing at nothing.
func (h *ArtworkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := artworkID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	artwork, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Artwork not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load artwork")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete artwork")
		return
	}
	h.removeArtworkFiles(artwork.ImagePath)

	h.hub.Broadcast(ws.Event{Type: ws.EventArtworkDeleted, ArtworkID: id})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Artwork deleted successfully!",
	})
}

// List serves the gallery with optional substring filter and sort.
func (h *ArtworkHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	sort := r.URL.Query().Get("sort")
	if sort == "" {
		sort = "newest"
	}

	artworks, err := h.store.List(r.Context(), q, sort)
	if err != nil {
		log.WithError(err).Error("listing artworks failed")
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"count":    len(artworks),
		"query":    q,
		"sort":     sort,
		"artworks": viewsOf(artworks),
	})
}

// Search returns artworks matching q in manual gallery order.
func (h *ArtworkHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "Query required")
		return
	}

	artworks, err := h.store.Search(r.Context(), q)
	if err != nil {
		log.WithError(err).Error("search failed")
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"count":    len(artworks),
		"query":    q,
		"artworks": viewsOf(artworks),
	})
}

// Info returns a single artwork.
func (h *ArtworkHandler) Info(w http.ResponseWriter, r *http.Request) {
	id, err := artworkID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}
	artwork, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Artwork not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load artwork")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "artwork": viewOf(*artwork)})
}

// Reorder applies a batch of manual position updates.
func (h *ArtworkHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Order []store.PositionUpdate `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order payload")
		return
	}
	if err := h.store.UpdatePositions(r.Context(), body.Order); err != nil {
		log.WithError(err).Error("reorder failed")
		respondError(w, http.StatusInternalServerError, "failed to update order")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order updated"})
}

func (h *ArtworkHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": "art-gallery"})
}

// saveUpload runs the uploaded bytes through the transcoder and persists
// the result. SVG files bypass the transcoder and are stored byte-identical.
// The stored extension always matches the actual container: the transcoder
// may turn a webp or gif into a jpeg.
func (h *ArtworkHandler) saveUpload(file multipart.File, fh *multipart.FileHeader) (string, error) {
	ext := fileExtension(fh.Filename)

	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	if ext != ".svg" {
		result := imagepipe.Optimize(data, imagepipe.OptimizeOptions{
			MaxWidth:  h.cfg.MaxWidth,
			MaxHeight: h.cfg.MaxHeight,
			Quality:   h.cfg.JPEGQuality,
		})
		if result.Transformed {
			data = result.Data
			switch result.Format {
			case "png":
				ext = ".png"
			case "jpeg":
				ext = ".jpg"
			}
		}
	}

	filename := uuid.New().String() + ext
	imagePath := filepath.Join(h.cfg.UploadsDir, filename)
	if err := atomic.WriteFile(imagePath, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write %s: %w", imagePath, err)
	}
	return imagePath, nil
}

func (h *ArtworkHandler) validateUpload(fh *multipart.FileHeader) string {
	if fh.Filename == "" {
		return "No file selected"
	}
	if !allowedExtensions[fileExtension(fh.Filename)] {
		return "Invalid file type. Please select: JPG, PNG, GIF, WebP, SVG"
	}
	if fh.Size > h.cfg.MaxUploadSize {
		return fmt.Sprintf("File too large (%dMB). Max size: %dMB",
			fh.Size/1024/1024, h.cfg.MaxUploadSize/1024/1024)
	}
	return ""
}

// removeArtworkFiles deletes a stored image and its thumbnail, logging
// rather than failing: the row is already gone or repointed.
func (h *ArtworkHandler) removeArtworkFiles(imagePath string) {
	if imagePath == "" {
		return
	}
	if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("path", imagePath).Warn("removing image failed")
	}
	if thumbPath, err := h.thumbr.Path(imagePath); err == nil {
		if err := os.Remove(thumbPath); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", thumbPath).Warn("removing thumbnail failed")
		}
	}
}

func artworkID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func titleOrNil(title string) *string {
	title = trimmed(title)
	if title == "" {
		return nil
	}
	return &title
}

func descriptionOrDefault(description string) string {
	description = trimmed(description)
	if description == "" {
		return "No description provided"
	}
	return description
}

func normalizeText(s *string) *string {
	if s == nil {
		return nil
	}
	t := trimmed(*s)
	if t == "" {
		return nil
	}
	return &t
}
