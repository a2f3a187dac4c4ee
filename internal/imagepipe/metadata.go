package imagepipe

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValueKind tags the physical type of a metadata value.
type ValueKind int

const (
	KindText ValueKind = iota
	KindInteger
	KindReal
	KindOpaque
)

// Value is a single metadata entry. Opaque values keep a hint about what
// they originally were so consumers don't have to guess from the string form.
type Value struct {
	Kind ValueKind
	Text string
	Int  int64
	Real float64
	Hint string
}

func TextValue(s string) Value  { return Value{Kind: KindText, Text: s} }
func IntValue(i int64) Value    { return Value{Kind: KindInteger, Int: i} }
func RealValue(f float64) Value { return Value{Kind: KindReal, Real: f} }
func OpaqueValue(s, hint string) Value {
	return Value{Kind: KindOpaque, Text: s, Hint: hint}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	default:
		return v.Text
	}
}

// TextMap is an ordered key/value bag of embedded text metadata.
// Insertion order is preserved so re-encoding writes chunks back in the
// order they were found.
type TextMap struct {
	keys []string
	vals map[string]Value
}

func NewTextMap() *TextMap {
	return &TextMap{vals: make(map[string]Value)}
}

func (m *TextMap) Set(key string, v Value) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

func (m *TextMap) Get(key string) (Value, bool) {
	v, ok := m.vals[key]
	return v, ok
}

func (m *TextMap) GetText(key string) (string, bool) {
	v, ok := m.vals[key]
	if !ok {
		return "", false
	}
	return v.String(), true
}

func (m *TextMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *TextMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Sidecar holds everything the codec pulled out of an image's side channels
// before any pixel transformation. Exif is the raw TIFF payload, passed
// through byte-identical on re-encode. Warnings record per-key conversion
// failures that were skipped without aborting extraction.
type Sidecar struct {
	Exif     []byte
	PNGText  *TextMap
	Warnings []string
}

// ExtractMetadata reads the format-specific side channel out of raw image
// bytes. A broken chunk or tag never fails the whole extraction; it is
// recorded as a warning and the rest of the metadata is kept.
func ExtractMetadata(data []byte, format string) Sidecar {
	var sc Sidecar
	switch format {
	case "png":
		text, exif, warns := readPNGText(data)
		sc.PNGText = text
		sc.Exif = exif
		sc.Warnings = warns
	case "jpeg":
		sc.Exif = extractJPEGExif(data)
	}
	return sc
}

// sanitizeText makes a side-channel byte sequence safe to carry as UTF-8,
// replacing invalid sequences instead of dropping the whole value.
func sanitizeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// flattenSidecar builds the namespaced png_<key> / exif_<TagName> mapping
// used for bulk inspection.
func flattenSidecar(sc Sidecar) (map[string]string, []string) {
	flat := make(map[string]string)
	warnings := append([]string(nil), sc.Warnings...)

	if sc.PNGText != nil {
		for _, key := range sc.PNGText.Keys() {
			v, _ := sc.PNGText.Get(key)
			flat["png_"+key] = v.String()
		}
	}

	if len(sc.Exif) > 0 {
		tags, err := decodeExifTags(sc.Exif)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("exif decode: %v", err))
		}
		for _, tag := range tags {
			if tag.Name == "" || tag.Value == "" {
				continue
			}
			flat["exif_"+tag.Name] = tag.Value
		}
	}

	return flat, warnings
}
