// Package media recompresses photos toward a byte budget while keeping an
// allow-list of their EXIF metadata.
package media

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// Content types the recompressor re-encodes. Everything else passes through.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
)

// Sniff returns the content type detected from the leading bytes of data.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}

// recompressible reports whether a sniffed type can be decoded and re-encoded.
func recompressible(mime string) bool {
	return mime == MIMEJPEG || mime == MIMEPNG
}

// Dimensions reads the pixel size from the image header without decoding
// the pixels. ok is false when no decoder recognizes data.
func Dimensions(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
