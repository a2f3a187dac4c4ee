package imagepipe

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// readPNGText scans the PNG chunk stream for textual side-channel data
// without decoding pixels: tEXt, zTXt and iTXt entries end up in the text
// map, and an eXIf chunk (raw TIFF data) is returned as the EXIF blob.
// A malformed chunk is skipped with a warning; scanning continues.
func readPNGText(data []byte) (*TextMap, []byte, []string) {
	var warnings []string
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return nil, nil, nil
	}

	text := NewTextMap()
	var exif []byte
	r := bytes.NewReader(data[len(pngSignature):])

	for {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			break
		}
		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(r, chunkType); err != nil {
			break
		}

		switch string(chunkType) {
		case "tEXt", "zTXt", "iTXt":
			chunk := make([]byte, length)
			if _, err := io.ReadFull(r, chunk); err != nil {
				warnings = append(warnings, fmt.Sprintf("truncated %s chunk", chunkType))
				return text, exif, warnings
			}
			key, val, err := decodeTextChunk(string(chunkType), chunk)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s chunk: %v", chunkType, err))
			} else {
				text.Set(key, TextValue(val))
			}
			if _, err := io.CopyN(io.Discard, r, 4); err != nil { // CRC
				return text, exif, warnings
			}
		case "eXIf":
			chunk := make([]byte, length)
			if _, err := io.ReadFull(r, chunk); err != nil {
				warnings = append(warnings, "truncated eXIf chunk")
				return text, exif, warnings
			}
			exif = chunk
			if _, err := io.CopyN(io.Discard, r, 4); err != nil {
				return text, exif, warnings
			}
		case "IEND":
			return text, exif, warnings
		default:
			if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
				return text, exif, warnings
			}
		}
	}
	return text, exif, warnings
}

// decodeTextChunk unpacks one of the three PNG text chunk layouts into a
// key/value pair. Compressed payloads are inflated; everything is carried
// as sanitized UTF-8.
func decodeTextChunk(chunkType string, data []byte) (string, string, error) {
	switch chunkType {
	case "tEXt":
		parts := bytes.SplitN(data, []byte{0}, 2)
		if len(parts) != 2 || len(parts[0]) == 0 {
			return "", "", fmt.Errorf("missing keyword separator")
		}
		return sanitizeText(parts[0]), sanitizeText(parts[1]), nil

	case "zTXt":
		parts := bytes.SplitN(data, []byte{0}, 2)
		if len(parts) != 2 || len(parts[1]) < 1 {
			return "", "", fmt.Errorf("missing keyword separator")
		}
		// first byte after the separator is the compression method
		inflated, err := inflate(parts[1][1:])
		if err != nil {
			return "", "", fmt.Errorf("inflate: %w", err)
		}
		return sanitizeText(parts[0]), sanitizeText(inflated), nil

	case "iTXt":
		// keyword \0 compressionFlag compressionMethod languageTag \0
		// translatedKeyword \0 text
		parts := bytes.SplitN(data, []byte{0}, 2)
		if len(parts) != 2 || len(parts[1]) < 2 {
			return "", "", fmt.Errorf("missing keyword separator")
		}
		key := sanitizeText(parts[0])
		compressed := parts[1][0] == 1
		rest := bytes.SplitN(parts[1][2:], []byte{0}, 3)
		if len(rest) != 3 {
			return "", "", fmt.Errorf("malformed iTXt fields")
		}
		raw := rest[2]
		if compressed {
			inflated, err := inflate(raw)
			if err != nil {
				return "", "", fmt.Errorf("inflate: %w", err)
			}
			raw = inflated
		}
		return key, sanitizeText(raw), nil
	}
	return "", "", fmt.Errorf("unsupported chunk type %s", chunkType)
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// insertPNGText splices the text map back into an encoded PNG as tEXt
// chunks placed directly after IHDR. Keys that cannot form a valid PNG
// keyword are skipped with a warning rather than producing a broken file.
func insertPNGText(encoded []byte, text *TextMap) ([]byte, []string, error) {
	if text.Len() == 0 {
		return encoded, nil, nil
	}
	if len(encoded) < len(pngSignature)+8 || !bytes.Equal(encoded[:len(pngSignature)], pngSignature) {
		return nil, nil, fmt.Errorf("not a PNG stream")
	}

	// first chunk must be IHDR; insertion point is right after it
	ihdrLen := binary.BigEndian.Uint32(encoded[8:12])
	if string(encoded[12:16]) != "IHDR" {
		return nil, nil, fmt.Errorf("first chunk is not IHDR")
	}
	cut := 8 + 8 + int(ihdrLen) + 4
	if cut > len(encoded) {
		return nil, nil, fmt.Errorf("truncated IHDR chunk")
	}

	var warnings []string
	var out bytes.Buffer
	out.Write(encoded[:cut])
	for _, key := range text.Keys() {
		v, _ := text.Get(key)
		chunk, err := buildTextChunk(key, v.String())
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("key %q skipped: %v", key, err))
			continue
		}
		out.Write(chunk)
	}
	out.Write(encoded[cut:])
	return out.Bytes(), warnings, nil
}

// buildTextChunk assembles a single tEXt chunk. PNG keywords are limited
// to 1-79 bytes and must not contain NUL.
func buildTextChunk(key, value string) ([]byte, error) {
	if key == "" || len(key) > 79 {
		return nil, fmt.Errorf("keyword length %d out of range", len(key))
	}
	if bytes.ContainsRune([]byte(key), 0) || bytes.ContainsRune([]byte(value), 0) {
		return nil, fmt.Errorf("embedded NUL")
	}

	payload := make([]byte, 0, len(key)+1+len(value))
	payload = append(payload, key...)
	payload = append(payload, 0)
	payload = append(payload, value...)

	chunk := make([]byte, 0, 12+len(payload))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(payload)))
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, payload...)
	crc := crc32.ChecksumIEEE(chunk[4:])
	chunk = binary.BigEndian.AppendUint32(chunk, crc)
	return chunk, nil
}
