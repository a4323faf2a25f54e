package media

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/kimhsiao/purchaselog/backend/internal/logging"
)

// Options controls the quality and size search.
type Options struct {
	TargetBytes      int64
	MinQuality       int
	MaxQuality       int
	MinLongestSidePx int
	MaxLongestSidePx int
	DownscaleStep    float64
}

// DefaultOptions returns the budget used for export photos.
func DefaultOptions() Options {
	return Options{
		TargetBytes:      180_000,
		MinQuality:       40,
		MaxQuality:       92,
		MinLongestSidePx: 900,
		MaxLongestSidePx: 2000,
		DownscaleStep:    0.85,
	}
}

// Validate checks the option invariants.
func (o Options) Validate() error {
	if o.TargetBytes <= 0 {
		return fmt.Errorf("target bytes must be positive, got %d", o.TargetBytes)
	}
	if o.MinQuality < 1 || o.MaxQuality > 100 || o.MinQuality > o.MaxQuality {
		return fmt.Errorf("quality range [%d, %d] is invalid", o.MinQuality, o.MaxQuality)
	}
	if o.MinLongestSidePx < 1 || o.MinLongestSidePx > o.MaxLongestSidePx {
		return fmt.Errorf("longest side range [%d, %d] is invalid", o.MinLongestSidePx, o.MaxLongestSidePx)
	}
	if o.DownscaleStep <= 0 || o.DownscaleStep >= 1 {
		return fmt.Errorf("downscale step must be in (0, 1), got %v", o.DownscaleStep)
	}
	return nil
}

// Result describes the file written by Compress.
type Result struct {
	Path string
	// Bytes is the size of the written file.
	Bytes int64
	// Quality is the JPEG quality used, zero when the source bytes were kept.
	Quality int
	// LongestEdge is the longest side of the written image, zero when a
	// passthrough file has no readable image header.
	LongestEdge  int
	Recompressed bool
	// Rotated is true when pixels were turned upright from an EXIF orientation.
	Rotated bool
	// Passthrough is true when the source was not a JPEG or PNG.
	Passthrough bool
}

// Compress writes a copy of input into outDir that fits opts.TargetBytes
// where possible.
//
// Sources that are not JPEG or PNG are copied under their own name. Sources
// already within budget are copied unchanged under a .jpg name. Larger
// sources are re-encoded as JPEG: the quality is binary searched at each
// candidate size, and the size shrinks by DownscaleStep until a quality fits.
// When shrinking would pass MinLongestSidePx, one last encode at
// MinLongestSidePx and MinQuality is accepted whatever its size.
func Compress(input, outDir string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid compression options: %w", err)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read source image: %w", err)
	}

	base := filepath.Base(input)
	mime := Sniff(data)
	if !recompressible(mime) {
		out := availablePath(outDir, base)
		if err := os.WriteFile(out, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to copy source: %w", err)
		}
		res := &Result{Path: out, Bytes: int64(len(data)), Passthrough: true}
		if w, h, ok := Dimensions(data); ok {
			res.LongestEdge = max(w, h)
		}
		return res, nil
	}

	out := availablePath(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".jpg")
	if int64(len(data)) <= opts.TargetBytes {
		if err := os.WriteFile(out, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to copy source: %w", err)
		}
		return &Result{Path: out, Bytes: int64(len(data))}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var meta *exifBlock
	if mime == MIMEJPEG {
		meta, _ = readExifBlock(data)
	}
	orientation := meta.sourceOrientation()
	rotated := orientation >= 2 && orientation <= 8
	if rotated {
		meta = meta.withOrientation(1)
	}
	segment, err := meta.segment()
	if err != nil {
		logging.Warn("Photo metadata not copied", map[string]interface{}{
			"source": base,
			"error":  err.Error(),
		})
		segment = nil
	}

	encoded, quality, edge, err := search(img, opts, int64(segment.len()))
	if err != nil {
		return nil, err
	}

	encoded, err = embedExif(encoded, segment)
	if err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.WriteFile(out, encoded, 0644); err != nil {
		return nil, fmt.Errorf("failed to write compressed image: %w", err)
	}

	logging.Debug("Photo recompressed", map[string]interface{}{
		"source":       base,
		"output":       filepath.Base(out),
		"source_bytes": len(data),
		"bytes":        len(encoded),
		"quality":      quality,
		"longest_edge": edge,
		"rotated":      rotated,
	})

	return &Result{
		Path:         out,
		Bytes:        int64(len(encoded)),
		Quality:      quality,
		LongestEdge:  edge,
		Recompressed: true,
		Rotated:      rotated,
	}, nil
}

// search returns the encoded image, its quality and longest edge. overhead is
// the size of the metadata segment that will be added to the encoding.
func search(img image.Image, opts Options, overhead int64) ([]byte, int, int, error) {
	bounds := img.Bounds()
	edge := clamp(max(bounds.Dx(), bounds.Dy()), opts.MinLongestSidePx, opts.MaxLongestSidePx)

	for {
		scaled := scaleTo(img, edge)
		encoded, quality, err := bestQuality(scaled, opts, overhead)
		if err != nil {
			return nil, 0, 0, err
		}
		if encoded != nil {
			return encoded, quality, edge, nil
		}

		next := int(math.Floor(float64(edge) * opts.DownscaleStep))
		if next < opts.MinLongestSidePx {
			break
		}
		edge = next
	}

	// last resort, accepted whatever its size
	edge = opts.MinLongestSidePx
	encoded, err := encodeJPEG(scaleTo(img, edge), opts.MinQuality)
	if err != nil {
		return nil, 0, 0, err
	}
	return encoded, opts.MinQuality, edge, nil
}

// bestQuality binary searches the highest quality whose encoding fits the
// budget. It returns nil when even MinQuality is too large.
func bestQuality(img image.Image, opts Options, overhead int64) ([]byte, int, error) {
	var best []byte
	quality := 0

	lo, hi := opts.MinQuality, opts.MaxQuality
	for lo <= hi {
		mid := (lo + hi) / 2
		encoded, err := encodeJPEG(img, mid)
		if err != nil {
			return nil, 0, err
		}
		if int64(len(encoded))+overhead > opts.TargetBytes {
			hi = mid - 1
		} else {
			best, quality = encoded, mid
			lo = mid + 1
		}
	}
	return best, quality, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg at quality %d: %w", quality, err)
	}
	return buf.Bytes(), nil
}

// scaleTo resizes img so its longest side is edge, keeping the aspect ratio.
func scaleTo(img image.Image, edge int) image.Image {
	w, h := scaledSize(img.Bounds().Dx(), img.Bounds().Dy(), edge)
	if w == img.Bounds().Dx() && h == img.Bounds().Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func scaledSize(w, h, edge int) (int, int) {
	if w >= h {
		return edge, max(1, int(math.Round(float64(h)*float64(edge)/float64(w))))
	}
	return max(1, int(math.Round(float64(w)*float64(edge)/float64(h)))), edge
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// availablePath returns dir/name, or dir/stem_N.ext for the first N that is
// not taken.
func availablePath(dir, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); err != nil {
			return filepath.Join(dir, candidate)
		}
		candidate = stem + "_" + strconv.Itoa(i) + ext
	}
}
