package imagepipe

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThumbnailer(t *testing.T) *Thumbnailer {
	t.Helper()
	root := t.TempDir()
	uploads := filepath.Join(root, "uploads")
	thumbs := filepath.Join(root, "thumbnails")
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	return NewThumbnailer(uploads, thumbs)
}

func writeUpload(t *testing.T, thumbr *Thumbnailer, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(thumbr.UploadsDir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestThumbnailerPath(t *testing.T) {
	thumbr := testThumbnailer(t)

	got, err := thumbr.Path(filepath.Join(thumbr.UploadsDir, "cat.png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(thumbr.ThumbsDir, "cat.png"), got)
}

func TestThumbnailerPathRejectsEscapes(t *testing.T) {
	thumbr := testThumbnailer(t)

	_, err := thumbr.Path(filepath.Join(thumbr.UploadsDir, "..", "secrets.png"))
	assert.Error(t, err)
}

func TestThumbnailerEnsureCreatesBoundedThumbnail(t *testing.T) {
	thumbr := testThumbnailer(t)
	original := writeUpload(t, thumbr, "big.png", encodePNG(t, testImage(900, 300)))

	thumbPath, err := thumbr.Ensure(original)
	require.NoError(t, err)

	data, err := os.ReadFile(thumbPath)
	require.NoError(t, err)
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.LessOrEqual(t, img.Bounds().Dx(), thumbr.Size)
	assert.LessOrEqual(t, img.Bounds().Dy(), thumbr.Size)
}

func TestThumbnailerEnsureIdempotent(t *testing.T) {
	thumbr := testThumbnailer(t)
	original := writeUpload(t, thumbr, "cat.png", encodePNG(t, testImage(600, 600)))

	first, err := thumbr.Ensure(original)
	require.NoError(t, err)
	before, err := os.Stat(first)
	require.NoError(t, err)

	second, err := thumbr.Ensure(original)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	after, err := os.Stat(second)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "existing thumbnail was rewritten")
}

func TestThumbnailerEnsurePreservesPNGText(t *testing.T) {
	thumbr := testThumbnailer(t)
	text := NewTextMap()
	text.Set("parameters", TextValue("a cat\nSteps: 20"))
	withText, _, err := insertPNGText(encodePNG(t, testImage(600, 600)), text)
	require.NoError(t, err)
	original := writeUpload(t, thumbr, "cat.png", withText)

	thumbPath, err := thumbr.Ensure(original)
	require.NoError(t, err)

	data, err := os.ReadFile(thumbPath)
	require.NoError(t, err)
	got, _, _ := readPNGText(data)
	v, ok := got.GetText("parameters")
	require.True(t, ok)
	assert.Equal(t, "a cat\nSteps: 20", v)
}

func TestThumbnailerEnsureMissingSource(t *testing.T) {
	thumbr := testThumbnailer(t)

	_, err := thumbr.Ensure(filepath.Join(thumbr.UploadsDir, "missing.png"))
	assert.Error(t, err)
}
