package imagepipe

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildExifBlob hand-assembles a minimal little-endian TIFF stream with a
// single IFD0 ImageDescription (0x010E) ASCII tag.
func buildExifBlob(t *testing.T, description string) []byte {
	t.Helper()

	value := append([]byte(description), 0)
	blob := make([]byte, 0, 26+len(value))

	// TIFF header: byte order, magic, offset of IFD0
	blob = append(blob, 'I', 'I', 0x2A, 0x00)
	blob = binary.LittleEndian.AppendUint32(blob, 8)

	// IFD0: one entry
	blob = binary.LittleEndian.AppendUint16(blob, 1)
	blob = binary.LittleEndian.AppendUint16(blob, 0x010E) // ImageDescription
	blob = binary.LittleEndian.AppendUint16(blob, 2)      // ASCII
	blob = binary.LittleEndian.AppendUint32(blob, uint32(len(value)))
	blob = binary.LittleEndian.AppendUint32(blob, 26) // value offset
	blob = binary.LittleEndian.AppendUint32(blob, 0)  // no next IFD

	require.Len(t, blob, 26)
	return append(blob, value...)
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, testImage(4, 4), imaging.JPEG))
	return buf.Bytes()
}

func TestSpliceAndExtractJPEGExif(t *testing.T) {
	encoded := encodeJPEG(t)
	blob := buildExifBlob(t, "hello exif")

	out := spliceJPEGExif(encoded, blob)
	require.NotEqual(t, encoded, out)

	// pass-through: the extracted blob is byte-identical
	assert.Equal(t, blob, extractJPEGExif(out))
}

func TestExtractJPEGExifAbsent(t *testing.T) {
	assert.Nil(t, extractJPEGExif(encodeJPEG(t)))
	assert.Nil(t, extractJPEGExif([]byte("not a jpeg")))
}

func TestSpliceJPEGExifOversizeBlobDropped(t *testing.T) {
	encoded := encodeJPEG(t)
	huge := make([]byte, 0x10000)
	assert.Equal(t, encoded, spliceJPEGExif(encoded, huge))
}

func TestSpliceJPEGExifEmptyBlob(t *testing.T) {
	encoded := encodeJPEG(t)
	assert.Equal(t, encoded, spliceJPEGExif(encoded, nil))
}

func TestDecodeExifTags(t *testing.T) {
	tags, err := decodeExifTags(buildExifBlob(t, "a scenic view"))
	require.NoError(t, err)

	var found bool
	for _, tag := range tags {
		if tag.Name == "ImageDescription" {
			found = true
			assert.Equal(t, "a scenic view", tag.Value)
		}
	}
	assert.True(t, found, "ImageDescription tag not decoded")
}

func TestCleanExifText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Steps: 20", "Steps: 20"},
		{"unicode prefix", "UNICODE\x00Steps: 20", "Steps: 20"},
		{"ascii prefix", "ASCII\x00\x00\x00Steps: 20", "Steps: 20"},
		{"nul padding", "Steps: 20\x00\x00", "Steps: 20"},
		{
			"utf16le",
			"a\x00 \x00p\x00r\x00o\x00m\x00p\x00t\x00 \x00h\x00e\x00r\x00e\x00",
			"a prompt here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanExifText(tt.in))
		})
	}
}
