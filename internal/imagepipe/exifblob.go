package imagepipe

import (
	"bytes"
	"strings"
	"unicode/utf16"

	exif "github.com/dsoprea/go-exif/v3"
)

var exifPrefix = []byte("Exif\x00\x00")

// extractJPEGExif walks the JPEG segment stream and returns the raw TIFF
// payload of the first APP1 EXIF segment, or nil when none is present.
// The blob is never re-encoded; reattaching writes these exact bytes back.
func extractJPEGExif(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return nil
		}
		marker := data[pos+1]
		// SOS: entropy-coded data follows, nothing to find past here
		if marker == 0xDA {
			return nil
		}
		segLen := int(data[pos+2])<<8 | int(data[pos+3])
		if segLen < 2 || pos+2+segLen > len(data) {
			return nil
		}
		if marker == 0xE1 {
			payload := data[pos+4 : pos+2+segLen]
			if bytes.HasPrefix(payload, exifPrefix) {
				blob := make([]byte, len(payload)-len(exifPrefix))
				copy(blob, payload[len(exifPrefix):])
				return blob
			}
		}
		pos += 2 + segLen
	}
	return nil
}

// spliceJPEGExif inserts the raw EXIF blob as an APP1 segment directly
// after SOI. A blob too large for a single APP1 segment is dropped to keep
// the file valid; the image bytes are returned unchanged in that case.
func spliceJPEGExif(encoded, exifRaw []byte) []byte {
	if len(exifRaw) == 0 {
		return encoded
	}
	if len(encoded) < 2 || encoded[0] != 0xFF || encoded[1] != 0xD8 {
		return encoded
	}
	seg := buildAPP1Segment(append(append([]byte{}, exifPrefix...), exifRaw...))
	if seg == nil {
		return encoded
	}
	out := make([]byte, 0, len(encoded)+len(seg))
	out = append(out, encoded[:2]...)
	out = append(out, seg...)
	out = append(out, encoded[2:]...)
	return out
}

// buildAPP1Segment frames content as a JPEG APP1 segment. The length field
// counts its own two bytes. Returns nil if the segment would not fit.
func buildAPP1Segment(content []byte) []byte {
	segLen := len(content) + 2
	if segLen > 0xFFFF {
		return nil
	}
	seg := []byte{0xFF, 0xE1, byte(segLen >> 8), byte(segLen & 0xFF)}
	return append(seg, content...)
}

// ExifTag is one decoded tag with its resolved name.
type ExifTag struct {
	Name  string
	Value string
}

// decodeExifTags resolves the raw blob into named tag values using the
// flat decode from go-exif. NUL padding in values is stripped.
func decodeExifTags(blob []byte) ([]ExifTag, error) {
	entries, _, err := exif.GetFlatExifData(blob, nil)
	if err != nil {
		return nil, err
	}
	tags := make([]ExifTag, 0, len(entries))
	for _, entry := range entries {
		if entry.TagName == "" {
			continue
		}
		value := strings.ReplaceAll(entry.FormattedFirst, "\x00", "")
		tags = append(tags, ExifTag{Name: entry.TagName, Value: value})
	}
	return tags, nil
}

// cleanExifText normalizes the messy encodings found in ImageDescription
// and UserComment fields: character-code prefixes, NUL padding and naive
// UTF-16 where generators interleave zero bytes.
func cleanExifText(s string) string {
	s = strings.TrimPrefix(s, "UNICODE")
	s = strings.TrimPrefix(s, "ASCII")
	s = strings.TrimLeft(s, "\x00")
	s = strings.TrimSpace(s)

	if looksUTF16(s) {
		units := make([]uint16, 0, len(s)/2)
		b := []byte(s)
		for i := 0; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])|uint16(b[i+1])<<8)
		}
		s = string(utf16.Decode(units))
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// looksUTF16 reports whether most odd byte positions are zero, the telltale
// of UTF-16LE text stored in a bytes field.
func looksUTF16(s string) bool {
	if len(s) < 10 {
		return false
	}
	nulls, total := 0, 0
	for i := 1; i < len(s) && i < 100; i += 2 {
		total++
		if s[i] == 0 {
			nulls++
		}
	}
	return total > 0 && float64(nulls)/float64(total) > 0.8
}
