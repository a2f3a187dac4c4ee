package imagepipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestExtractAIMetadataFromPNGParameters(t *testing.T) {
	text := NewTextMap()
	text.Set("parameters", TextValue("A cat, Negative prompt: blurry\nSteps: 20, Sampler: Euler a, CFG scale: 7, Seed: 42, Size: 512x512"))
	withText, _, err := insertPNGText(encodePNG(t, testImage(12, 8)), text)
	require.NoError(t, err)
	path := writeTemp(t, "gen.png", withText)

	meta := ExtractAIMetadata(path)
	assert.Equal(t, "A cat", meta.Fields["prompt"])
	assert.Equal(t, "blurry", meta.Fields["negative_prompt"])
	assert.Equal(t, "20", meta.Fields["steps"])
	assert.Equal(t, "Euler a", meta.Fields["sampler"])
	assert.Equal(t, "7", meta.Fields["cfg_scale"])
	assert.Equal(t, "42", meta.Fields["seed"])
	assert.Equal(t, "512x512", meta.Fields["generation_size"])
	assert.Equal(t, "PNG", meta.Fields["format"])
	assert.Equal(t, "12x8", meta.Fields["size"])
	assert.Equal(t, "png", meta.Source["prompt"])
}

func TestExtractAIMetadataPromptFallbackKey(t *testing.T) {
	text := NewTextMap()
	text.Set("Description", TextValue("a painting of a fox"))
	withText, _, err := insertPNGText(encodePNG(t, testImage(4, 4)), text)
	require.NoError(t, err)
	path := writeTemp(t, "fallback.png", withText)

	meta := ExtractAIMetadata(path)
	assert.Equal(t, "a painting of a fox", meta.Fields["prompt"])
	assert.Equal(t, "png", meta.Source["prompt"])
}

func TestExtractAIMetadataLastFallbackKeyWins(t *testing.T) {
	text := NewTextMap()
	text.Set("prompt", TextValue("from prompt key"))
	text.Set("Comment", TextValue("from comment key"))
	withText, _, err := insertPNGText(encodePNG(t, testImage(4, 4)), text)
	require.NoError(t, err)
	path := writeTemp(t, "multi.png", withText)

	meta := ExtractAIMetadata(path)
	assert.Equal(t, "from comment key", meta.Fields["prompt"])
}

func TestExtractAIMetadataPlainImage(t *testing.T) {
	path := writeTemp(t, "plain.png", encodePNG(t, testImage(10, 20)))

	meta := ExtractAIMetadata(path)
	assert.Equal(t, "PNG", meta.Fields["format"])
	assert.Equal(t, "10x20", meta.Fields["size"])
	assert.NotContains(t, meta.Fields, "prompt")
	assert.NotContains(t, meta.Fields, "steps")
}

func TestExtractAIMetadataFromJPEGExif(t *testing.T) {
	blob := buildExifBlob(t, "a dog, Negative prompt: cats\nSteps: 30")
	withExif := spliceJPEGExif(encodeJPEG(t), blob)
	path := writeTemp(t, "gen.jpg", withExif)

	meta := ExtractAIMetadata(path)
	assert.Equal(t, "a dog", meta.Fields["prompt"])
	assert.Equal(t, "cats", meta.Fields["negative_prompt"])
	assert.Equal(t, "30", meta.Fields["steps"])
	assert.Equal(t, "exif", meta.Source["prompt"])
	assert.Equal(t, "JPEG", meta.Fields["format"])
}

func TestExtractAIMetadataMissingFile(t *testing.T) {
	meta := ExtractAIMetadata(filepath.Join(t.TempDir(), "nope.png"))
	assert.Empty(t, meta.Fields)
	assert.NotEmpty(t, meta.Warnings)
}

func TestExtractFlatNamespacesKeys(t *testing.T) {
	text := NewTextMap()
	text.Set("parameters", TextValue("stuff"))
	text.Set("Author", TextValue("someone"))
	withText, _, err := insertPNGText(encodePNG(t, testImage(4, 4)), text)
	require.NoError(t, err)
	path := writeTemp(t, "flat.png", withText)

	flat, warnings := ExtractFlat(path)
	assert.Empty(t, warnings)
	assert.Equal(t, "stuff", flat["png_parameters"])
	assert.Equal(t, "someone", flat["png_Author"])
}

func TestExtractFlatJPEGExif(t *testing.T) {
	blob := buildExifBlob(t, "a scenic view")
	withExif := spliceJPEGExif(encodeJPEG(t), blob)
	path := writeTemp(t, "flat.jpg", withExif)

	flat, _ := ExtractFlat(path)
	assert.Equal(t, "a scenic view", flat["exif_ImageDescription"])
}

func TestExtractFlatUnreadable(t *testing.T) {
	flat, warnings := ExtractFlat(filepath.Join(t.TempDir(), "nope.png"))
	assert.Empty(t, flat)
	assert.NotEmpty(t, warnings)
}
