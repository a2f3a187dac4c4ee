package imagepipe

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"
)

// Thumbnailer derives thumbnails into a directory tree parallel to the
// uploads tree: only the directory segment changes, the filename stays.
type Thumbnailer struct {
	UploadsDir string
	ThumbsDir  string
	Size       int
	Quality    int
}

func NewThumbnailer(uploadsDir, thumbsDir string) *Thumbnailer {
	return &Thumbnailer{
		UploadsDir: uploadsDir,
		ThumbsDir:  thumbsDir,
		Size:       400,
		Quality:    85,
	}
}

// Path maps an original path under the uploads directory to its thumbnail
// path. Paths outside the uploads tree are rejected.
func (t *Thumbnailer) Path(originalPath string) (string, error) {
	rel, err := filepath.Rel(t.UploadsDir, originalPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the uploads directory", originalPath)
	}
	return filepath.Join(t.ThumbsDir, rel), nil
}

// Ensure creates the thumbnail for originalPath if it does not exist yet
// and returns its path. An existing file short-circuits without touching
// it, so repeated calls are cheap and leave the mtime alone. Concurrent
// first-time calls may both render; the atomic write keeps the final file
// valid either way.
func (t *Thumbnailer) Ensure(originalPath string) (string, error) {
	thumbPath, err := t.Path(originalPath)
	if err != nil {
		log.WithError(err).WithField("path", originalPath).Warn("thumbnail path rejected")
		return "", err
	}

	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	data, err := os.ReadFile(originalPath)
	if err != nil {
		log.WithError(err).WithField("path", originalPath).Warn("thumbnail source unreadable")
		return "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("path", originalPath).Warn("thumbnail decode failed")
		return "", err
	}

	// same metadata and transparency handling as the full-size pipeline
	sidecar := ExtractMetadata(data, format)
	img, asPNG := applyTransparencyRule(img, format)
	img = imaging.Fit(img, t.Size, t.Size, imaging.Lanczos)

	out, _, err := encodeWithMetadata(img, asPNG, sidecar, t.Quality)
	if err != nil {
		log.WithError(err).WithField("path", originalPath).Warn("thumbnail encode failed")
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(thumbPath), 0o755); err != nil {
		return "", err
	}
	if err := atomic.WriteFile(thumbPath, bytes.NewReader(out)); err != nil {
		log.WithError(err).WithField("path", thumbPath).Warn("thumbnail write failed")
		return "", err
	}

	log.WithField("path", thumbPath).Debug("thumbnail created")
	return thumbPath, nil
}
