package imagepipe

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/png"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

// OptimizeOptions bound the output geometry and JPEG quality.
type OptimizeOptions struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

func DefaultOptimizeOptions() OptimizeOptions {
	return OptimizeOptions{MaxWidth: 1920, MaxHeight: 1080, Quality: 85}
}

// OptimizeResult is what the transcoder hands back. When Transformed is
// false the Data is the caller's input byte-for-byte; callers that care
// must check it rather than assume re-encoding happened.
type OptimizeResult struct {
	Data        []byte
	Format      string
	Transformed bool
	Warnings    []string
}

// Optimize decodes an image, captures its embedded metadata before any
// pixel mutation, applies the transparency rule, downsamples to fit the
// configured bounds, and re-encodes with the metadata reattached.
//
// It fails open: if anything goes wrong the original bytes come back
// untouched with Transformed=false, so an upload still succeeds even when
// the pipeline cannot handle its content.
func Optimize(data []byte, opts OptimizeOptions) OptimizeResult {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).Warn("optimize: decode failed, keeping original bytes")
		return OptimizeResult{Data: data, Warnings: []string{fmt.Sprintf("decode: %v", err)}}
	}

	// metadata must reflect the original, not the resized result
	sidecar := ExtractMetadata(data, format)
	warnings := append([]string(nil), sidecar.Warnings...)

	img, asPNG := applyTransparencyRule(img, format)

	bounds := img.Bounds()
	if bounds.Dx() > opts.MaxWidth || bounds.Dy() > opts.MaxHeight {
		img = imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)
	}

	out, encodeWarnings, err := encodeWithMetadata(img, asPNG, sidecar, opts.Quality)
	warnings = append(warnings, encodeWarnings...)
	if err != nil {
		log.WithError(err).Warn("optimize: encode failed, keeping original bytes")
		return OptimizeResult{Data: data, Warnings: append(warnings, fmt.Sprintf("encode: %v", err))}
	}

	outFormat := "jpeg"
	if asPNG {
		outFormat = "png"
	}
	log.WithFields(log.Fields{"from": format, "to": outFormat}).Debug("image optimized")
	return OptimizeResult{Data: out, Format: outFormat, Transformed: true, Warnings: warnings}
}

// applyTransparencyRule decides the output mode. An alpha or palette
// channel on a PNG source forces PNG output; any other image with real
// transparency is flattened onto an opaque white background and becomes
// JPEG material.
func applyTransparencyRule(img image.Image, format string) (image.Image, bool) {
	_, paletted := img.(*image.Paletted)
	translucent := !isOpaque(img)

	if (paletted || translucent) && format == "png" {
		return img, true
	}
	if translucent {
		img = flattenOnWhite(img)
	}
	return img, format == "png"
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}

func flattenOnWhite(img image.Image) image.Image {
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), white)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

// encodeWithMetadata writes the image in its decided container and splices
// the captured side channel back in: PNG text entries for PNG, the raw
// EXIF blob for JPEG. Never both.
func encodeWithMetadata(img image.Image, asPNG bool, sidecar Sidecar, quality int) ([]byte, []string, error) {
	var buf bytes.Buffer
	if asPNG {
		if err := imaging.Encode(&buf, img, imaging.PNG,
			imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
			return nil, nil, err
		}
		if sidecar.PNGText.Len() == 0 {
			return buf.Bytes(), nil, nil
		}
		out, warnings, err := insertPNGText(buf.Bytes(), sidecar.PNGText)
		if err != nil {
			return nil, warnings, err
		}
		return out, warnings, nil
	}

	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, nil, err
	}
	return spliceJPEGExif(buf.Bytes(), sidecar.Exif), nil, nil
}
