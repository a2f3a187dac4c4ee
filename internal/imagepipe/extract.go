package imagepipe

import (
	"bytes"
	"fmt"
	"image"
	"os"

	log "github.com/sirupsen/logrus"
)

// AIMetadata is the flat record handed to the HTTP layer. Source records
// which side channel produced each field when both carried a value, so
// the EXIF-over-PNG overwrite order stays observable.
type AIMetadata struct {
	Fields   map[string]string `json:"fields"`
	Source   map[string]string `json:"source,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// promptFallbackKeys are checked when a PNG carries no parameters entry.
var promptFallbackKeys = []string{"prompt", "Prompt", "Description", "Comment"}

// ExtractFlat opens the file at path and returns every embedded metadata
// entry under a namespaced key (png_<key>, exif_<TagName>). It is
// independent of the AI-specific parsing and meant for bulk inspection.
// Failure yields an empty map plus warnings, never an error.
func ExtractFlat(path string) (map[string]string, []string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("metadata read failed")
		return map[string]string{}, []string{fmt.Sprintf("read: %v", err)}
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("metadata format detection failed")
		return map[string]string{}, []string{fmt.Sprintf("decode: %v", err)}
	}

	return flattenSidecar(ExtractMetadata(data, format))
}

// ExtractAIMetadata opens the file at path and assembles the AI generation
// record: PNG parameter text first, then EXIF description fields, with
// EXIF winning on key collisions. Image format and pixel size are always
// included regardless of what the parsers find.
func ExtractAIMetadata(path string) AIMetadata {
	meta := AIMetadata{Fields: map[string]string{}, Source: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("metadata read failed")
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("read: %v", err))
		return meta
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("metadata decode failed")
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("decode: %v", err))
		return meta
	}

	sidecar := ExtractMetadata(data, format)
	meta.Warnings = append(meta.Warnings, sidecar.Warnings...)

	if format == "png" && sidecar.PNGText.Len() > 0 {
		// every matching fallback key writes; the last one listed wins
		for _, key := range promptFallbackKeys {
			if v, ok := sidecar.PNGText.GetText(key); ok {
				meta.set("prompt", v, "png")
			}
		}
		if params, ok := sidecar.PNGText.GetText("parameters"); ok {
			meta.merge(ParseGenerationParams(params), "png")
		}
	}

	if len(sidecar.Exif) > 0 {
		tags, err := decodeExifTags(sidecar.Exif)
		if err != nil {
			meta.Warnings = append(meta.Warnings, fmt.Sprintf("exif decode: %v", err))
		}
		for _, tag := range tags {
			if tag.Name != "ImageDescription" && tag.Name != "UserComment" {
				continue
			}
			text := cleanExifText(tag.Value)
			if text == "" {
				continue
			}
			// EXIF parameter text is always the line-oriented format
			meta.merge(ParseParameterText(text), "exif")
		}
	}

	meta.Fields["format"] = formatLabel(format)
	meta.Fields["size"] = fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	return meta
}

func (m *AIMetadata) set(key, value, source string) {
	m.Fields[key] = value
	m.Source[key] = source
}

// merge applies parsed params with last-writer-wins semantics, tagging
// each written field with its source.
func (m *AIMetadata) merge(params GenParams, source string) {
	for key, value := range params {
		m.set(key, value, source)
	}
}

func formatLabel(format string) string {
	switch format {
	case "png":
		return "PNG"
	case "jpeg":
		return "JPEG"
	case "gif":
		return "GIF"
	case "webp":
		return "WEBP"
	}
	return format
}
