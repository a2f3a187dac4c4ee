package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery/internal/config"
	"gallery/internal/imagepipe"
)

func testHandler(t *testing.T) *ArtworkHandler {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		UploadsDir:    filepath.Join(root, "uploads"),
		ThumbnailsDir: filepath.Join(root, "thumbnails"),
	}
	require.NoError(t, config.InitStorage(cfg))
	thumbr := imagepipe.NewThumbnailer(cfg.UploadsDir, cfg.ThumbnailsDir)
	return NewArtworkHandler(nil, cfg, thumbr, nil)
}

func TestRemoveArtworkFilesDeletesImageAndThumbnail(t *testing.T) {
	h := testHandler(t)
	imagePath := filepath.Join(h.cfg.UploadsDir, "a.png")
	thumbPath := filepath.Join(h.cfg.ThumbnailsDir, "a.png")
	require.NoError(t, os.WriteFile(imagePath, []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(thumbPath, []byte("thumb"), 0o644))

	h.removeArtworkFiles(imagePath)

	_, err := os.Stat(imagePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(thumbPath)
	assert.True(t, os.IsNotExist(err), "thumbnail left behind")
}

func TestRemoveArtworkFilesToleratesMissing(t *testing.T) {
	h := testHandler(t)
	// nothing written: must not panic or create anything
	h.removeArtworkFiles(filepath.Join(h.cfg.UploadsDir, "gone.png"))
	h.removeArtworkFiles("")
}
