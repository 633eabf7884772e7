// Package codec performs on-disk image format conversion and metadata
// embedding for the post-processing pipeline.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/webp"

	"imagedl/pkg/errors"
)

// Codec converts images between formats and embeds metadata into them.
type Codec interface {
	// Convert re-encodes the image at path into the target extension and
	// returns the new path. A file already in the target format is
	// returned unchanged.
	Convert(path, targetExt string) (string, error)
	// Embed writes the metadata map into the image file in place.
	Embed(path string, meta map[string]string) error
}

// defaultJPEGQuality matches the encoder default of common tooling.
const defaultJPEGQuality = 92

// imageCodec is the default Codec: stdlib decoders plus webp, with JPEG
// comment segments as the metadata carrier.
type imageCodec struct {
	jpegQuality int
}

// New returns the default codec.
func New() Codec { return imageCodec{jpegQuality: defaultJPEGQuality} }

// NewWithQuality returns a codec encoding JPEG at the given quality (1-100).
func NewWithQuality(quality int) Codec {
	if quality < 1 || quality > 100 {
		quality = defaultJPEGQuality
	}
	return imageCodec{jpegQuality: quality}
}

func (c imageCodec) Convert(path, targetExt string) (string, error) {
	targetExt = normalizeExt(targetExt)
	if normalizeExt(currentExt(path)) == targetExt {
		return path, nil
	}

	img, err := decodeFile(path)
	if err != nil {
		return "", err
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + "." + targetExt
	tmp := outPath + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrap(errors.KindFilesystem, err, "creating converted file")
	}

	switch targetExt {
	case "jpg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: c.jpegQuality})
	case "png":
		err = png.Encode(f, img)
	case "gif":
		err = gif.Encode(f, img, nil)
	default:
		f.Close()
		os.Remove(tmp)
		return "", errors.Newf(errors.KindPostProcess, "cannot encode to %q", targetExt)
	}
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return "", errors.Wrap(errors.KindPostProcess, err, "encoding image")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(errors.KindFilesystem, err, "closing converted file")
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(errors.KindFilesystem, err, "renaming converted file")
	}

	if outPath != path {
		os.Remove(path)
	}
	return outPath, nil
}

// Embed stores the metadata as a JSON payload. Only JPEG carries an
// in-band segment; other formats get a sidecar-free no-op since their
// metadata lives in the info.json written by the pipeline.
func (imageCodec) Embed(path string, meta map[string]string) error {
	if normalizeExt(currentExt(path)) != "jpg" {
		return nil
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(errors.KindPostProcess, err, "encoding metadata")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.KindFilesystem, err, "reading image")
	}

	out, err := insertJPEGComment(data, append([]byte(commentPrefix), payload...))
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.Wrap(errors.KindFilesystem, err, "writing image")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.KindFilesystem, err, "replacing image")
	}
	return nil
}

// commentPrefix marks comment segments written by Embed so a re-run
// replaces rather than duplicates them.
const commentPrefix = "imagedl:"

// insertJPEGComment places a COM segment right after SOI, dropping any
// previous segment carrying the prefix.
func insertJPEGComment(data, comment []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New(errors.KindPostProcess, "not a JPEG file")
	}
	if len(comment) > 0xFFFF-2 {
		return nil, errors.New(errors.KindPostProcess, "metadata too large to embed")
	}

	stripped := stripComment(data)

	seg := make([]byte, 4+len(comment))
	seg[0] = 0xFF
	seg[1] = 0xFE
	binary.BigEndian.PutUint16(seg[2:4], uint16(len(comment)+2))
	copy(seg[4:], comment)

	out := make([]byte, 0, len(stripped)+len(seg))
	out = append(out, stripped[:2]...)
	out = append(out, seg...)
	out = append(out, stripped[2:]...)
	return out, nil
}

// stripComment removes an existing prefixed COM segment while walking the
// marker stream. Scanning stops at SOS since segments never follow
// entropy-coded data.
func stripComment(data []byte) []byte {
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		if marker == 0xDA {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		end := i + 2 + segLen
		if end > len(data) {
			break
		}
		if marker == 0xFE && bytes.HasPrefix(data[i+4:end], []byte(commentPrefix)) {
			out := make([]byte, 0, len(data)-(end-i))
			out = append(out, data[:i]...)
			out = append(out, data[end:]...)
			return out
		}
		i = end
	}
	return data
}

// ExtractComment reads back a previously embedded metadata map. Used by
// tests and idempotence checks.
func ExtractComment(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindFilesystem, err, "reading image")
	}

	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF || data[i+1] == 0xDA {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		end := i + 2 + segLen
		if end > len(data) {
			break
		}
		if data[i+1] == 0xFE && bytes.HasPrefix(data[i+4:end], []byte(commentPrefix)) {
			var meta map[string]string
			if err := json.Unmarshal(data[i+4+len(commentPrefix):end], &meta); err != nil {
				return nil, errors.Wrap(errors.KindPostProcess, err, "decoding embedded metadata")
			}
			return meta, nil
		}
		i = end
	}
	return nil, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindFilesystem, err, "opening image")
	}
	defer f.Close()

	var img image.Image
	switch normalizeExt(currentExt(path)) {
	case "webp":
		img, err = webp.Decode(f)
	default:
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindPostProcess, err, "decoding image")
	}
	return img, nil
}

func currentExt(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}
