// Package media tests for photo recompression and EXIF allow-list copying.
package media

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// =====================================================
// Fixtures
// =====================================================

// noiseImage returns a deterministic image that compresses poorly.
func noiseImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, img image.Image, quality int, meta *exifBlock) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	seg, err := meta.segment()
	if err != nil {
		t.Fatalf("segment() error = %v", err)
	}
	data, err := embedExif(buf.Bytes(), seg)
	if err != nil {
		t.Fatalf("embedExif() error = %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return data
}

func rationals(order binary.ByteOrder, pairs ...uint32) []byte {
	out := make([]byte, 4*len(pairs))
	for i, v := range pairs {
		order.PutUint32(out[4*i:], v)
	}
	return out
}

// cameraBlock builds EXIF metadata as a camera would write it, including a
// tag outside the allow-list.
func cameraBlock(order binary.ByteOrder, orientation uint16) *exifBlock {
	b := &exifBlock{
		order: order,
		ifd0: []exifEntry{
			asciiEntry(tagMake, "Acme"),
			asciiEntry(tagModel, "Shooter 9"),
			asciiEntry(0x0131, "PhotoEditor 2"), // Software
		},
		exif: []exifEntry{
			asciiEntry(tagDateTimeOriginal, "2023:04:05 06:07:08"),
			asciiEntry(tagSubSecOriginal, "42"),
			asciiEntry(tagOffsetTimeOriginal, "+02:00"),
			{id: tagExposureTime, typ: tiff.DTRational, count: 1, val: rationals(order, 1, 125)},
		},
		gps: []exifEntry{
			asciiEntry(0x0001, "N"),
			{id: 0x0002, typ: tiff.DTRational, count: 3, val: rationals(order, 25, 1, 2, 1, 0, 1)},
			asciiEntry(0x0003, "E"),
			{id: 0x0004, typ: tiff.DTRational, count: 3, val: rationals(order, 121, 1, 30, 1, 0, 1)},
		},
	}
	if orientation != 0 {
		b = b.withOrientation(orientation)
	}
	return b
}

func testOptions() Options {
	return Options{
		TargetBytes:      40_000,
		MinQuality:       40,
		MaxQuality:       92,
		MinLongestSidePx: 200,
		MaxLongestSidePx: 800,
		DownscaleStep:    0.85,
	}
}

func decodeConfig(t *testing.T, path string) image.Config {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	return cfg
}

// =====================================================
// Options Tests
// =====================================================

// TestOptions_Validate verifies option invariants.
func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"equal quality bounds", func(o *Options) { o.MinQuality, o.MaxQuality = 70, 70 }, false},
		{"zero target", func(o *Options) { o.TargetBytes = 0 }, true},
		{"inverted quality", func(o *Options) { o.MinQuality, o.MaxQuality = 90, 40 }, true},
		{"quality above 100", func(o *Options) { o.MaxQuality = 101 }, true},
		{"inverted edges", func(o *Options) { o.MinLongestSidePx, o.MaxLongestSidePx = 2000, 900 }, true},
		{"step of one", func(o *Options) { o.DownscaleStep = 1 }, true},
		{"zero step", func(o *Options) { o.DownscaleStep = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if err := o.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestScaledSize verifies aspect ratio preservation.
func TestScaledSize(t *testing.T) {
	tests := []struct {
		w, h, edge   int
		wantW, wantH int
	}{
		{4000, 3000, 2000, 2000, 1500},
		{3000, 4000, 2000, 1500, 2000},
		{1000, 1000, 900, 900, 900},
		{3000, 1, 900, 900, 1},
		{333, 1000, 900, 300, 900},
	}

	for _, tt := range tests {
		w, h := scaledSize(tt.w, tt.h, tt.edge)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("scaledSize(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.edge, w, h, tt.wantW, tt.wantH)
		}
	}
}

// =====================================================
// Compress Tests
// =====================================================

// TestCompress_passthrough verifies unsupported formats are copied under their own name.
func TestCompress_passthrough(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()

	var buf bytes.Buffer
	if err := gif.Encode(&buf, noiseImage(64, 64, 1), nil); err != nil {
		t.Fatalf("gif.Encode() error = %v", err)
	}
	src := filepath.Join(dir, "scan.gif")
	if err := os.WriteFile(src, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	opts := testOptions()
	opts.TargetBytes = 10
	res, err := Compress(src, outDir, opts)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !res.Passthrough || res.Recompressed || res.LongestEdge != 64 {
		t.Errorf("Result = %+v, want passthrough with edge 64", res)
	}
	if filepath.Base(res.Path) != "scan.gif" {
		t.Errorf("output name = %s, want scan.gif", filepath.Base(res.Path))
	}
	got, _ := os.ReadFile(res.Path)
	if !bytes.Equal(got, buf.Bytes()) {
		t.Error("passthrough output differs from source")
	}
}

// TestCompress_withinBudget verifies small sources are copied without recompression.
func TestCompress_withinBudget(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	src := filepath.Join(dir, "receipt.png")
	if err := os.WriteFile(src, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := Compress(src, outDir, testOptions())
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if res.Recompressed || res.Passthrough || res.Quality != 0 {
		t.Errorf("Result = %+v, want unchanged copy", res)
	}
	if filepath.Base(res.Path) != "receipt.jpg" {
		t.Errorf("output name = %s, want receipt.jpg", filepath.Base(res.Path))
	}
	got, _ := os.ReadFile(res.Path)
	if !bytes.Equal(got, buf.Bytes()) {
		t.Error("within-budget output should be byte-identical")
	}
}

// TestCompress_keepsMetadataWithinBudget verifies the orientation tag survives an unchanged copy.
func TestCompress_keepsMetadataWithinBudget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.jpg")
	data := writeJPEG(t, src, noiseImage(32, 16, 2), 80, cameraBlock(binary.LittleEndian, 6))

	res, err := Compress(src, t.TempDir(), testOptions())
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	got, _ := os.ReadFile(res.Path)
	if !bytes.Equal(got, data) {
		t.Fatal("within-budget output should be byte-identical")
	}
	b, err := readExifBlock(got)
	if err != nil {
		t.Fatalf("readExifBlock() error = %v", err)
	}
	if b.sourceOrientation() != 6 {
		t.Errorf("orientation = %d, want 6", b.sourceOrientation())
	}
}

// TestCompress_fitsBudget verifies the size-or-last-resort property.
func TestCompress_fitsBudget(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	src := filepath.Join(dir, "shelf.jpg")
	writeJPEG(t, src, noiseImage(800, 600, 3), 95, nil)

	opts := testOptions()
	res, err := Compress(src, outDir, opts)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !res.Recompressed {
		t.Fatalf("Result = %+v, want recompressed", res)
	}

	fits := res.Bytes <= opts.TargetBytes
	lastResort := res.LongestEdge == opts.MinLongestSidePx && res.Quality == opts.MinQuality
	if !fits && !lastResort {
		t.Errorf("output %d bytes at edge %d quality %d: neither fits nor last resort",
			res.Bytes, res.LongestEdge, res.Quality)
	}

	info, err := os.Stat(res.Path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != res.Bytes {
		t.Errorf("file size = %d, Result.Bytes = %d", info.Size(), res.Bytes)
	}

	cfg := decodeConfig(t, res.Path)
	if max(cfg.Width, cfg.Height) != res.LongestEdge {
		t.Errorf("decoded %dx%d, want longest edge %d", cfg.Width, cfg.Height, res.LongestEdge)
	}
	if res.Quality < opts.MinQuality || res.Quality > opts.MaxQuality {
		t.Errorf("quality %d outside [%d, %d]", res.Quality, opts.MinQuality, opts.MaxQuality)
	}
}

// TestCompress_lastResort verifies an unreachable budget ends at the minimum edge and quality.
func TestCompress_lastResort(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "huge.png")
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, noiseImage(500, 250, 4)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	opts := testOptions()
	opts.TargetBytes = 500
	res, err := Compress(src, t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if res.LongestEdge != opts.MinLongestSidePx || res.Quality != opts.MinQuality {
		t.Errorf("Result = %+v, want edge %d quality %d", res, opts.MinLongestSidePx, opts.MinQuality)
	}
	if filepath.Ext(res.Path) != ".jpg" {
		t.Errorf("output %s should use .jpg", res.Path)
	}
	cfg := decodeConfig(t, res.Path)
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("decoded %dx%d, want 200x100", cfg.Width, cfg.Height)
	}
}

// TestCompress_rotatesAndCopiesMetadata verifies upright pixels, a reset
// orientation tag, and the allow-listed tags on the output.
func TestCompress_rotatesAndCopiesMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "side.jpg")
	// stored landscape, displayed portrait
	writeJPEG(t, src, noiseImage(400, 200, 5), 95, cameraBlock(binary.LittleEndian, 6))

	opts := testOptions()
	opts.TargetBytes = 20_000
	opts.MinLongestSidePx = 100
	res, err := Compress(src, t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !res.Rotated {
		t.Error("Result.Rotated should be true for orientation 6")
	}

	cfg := decodeConfig(t, res.Path)
	if cfg.Height <= cfg.Width {
		t.Errorf("decoded %dx%d, want portrait", cfg.Width, cfg.Height)
	}

	f, err := os.Open(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	x, err := exif.Decode(f)
	if err != nil {
		t.Fatalf("exif.Decode() error = %v", err)
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		t.Fatalf("Orientation missing: %v", err)
	}
	if v, _ := tag.Int(0); v != 1 {
		t.Errorf("Orientation = %d, want 1", v)
	}

	tag, err = x.Get(exif.DateTimeOriginal)
	if err != nil {
		t.Fatalf("DateTimeOriginal missing: %v", err)
	}
	if v, _ := tag.StringVal(); v != "2023:04:05 06:07:08" {
		t.Errorf("DateTimeOriginal = %q", v)
	}

	tag, err = x.Get(exif.Make)
	if err != nil {
		t.Fatalf("Make missing: %v", err)
	}
	if v, _ := tag.StringVal(); v != "Acme" {
		t.Errorf("Make = %q, want Acme", v)
	}

	if _, err := x.Get(exif.Software); err == nil {
		t.Error("Software is not allow-listed and should be dropped")
	}

	lat, long, err := x.LatLong()
	if err != nil {
		t.Fatalf("LatLong() error = %v", err)
	}
	if lat < 25.03 || lat > 25.04 || long < 121.49 || long > 121.51 {
		t.Errorf("LatLong() = %v, %v", lat, long)
	}

	data, _ := os.ReadFile(res.Path)
	b, err := readExifBlock(data)
	if err != nil {
		t.Fatalf("readExifBlock() error = %v", err)
	}
	var offset string
	for _, e := range b.exif {
		if e.id == tagOffsetTimeOriginal {
			offset = string(bytes.TrimRight(e.val, "\x00"))
		}
	}
	if offset != "+02:00" {
		t.Errorf("OffsetTimeOriginal = %q, want +02:00", offset)
	}
}

// TestCompress_keepsUprightOrientation verifies the source tag is copied when no rotation happens.
func TestCompress_keepsUprightOrientation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upright.jpg")
	writeJPEG(t, src, noiseImage(400, 200, 6), 95, cameraBlock(binary.BigEndian, 1))

	opts := testOptions()
	opts.TargetBytes = 20_000
	opts.MinLongestSidePx = 100
	res, err := Compress(src, t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if res.Rotated {
		t.Error("Result.Rotated should be false for orientation 1")
	}

	data, _ := os.ReadFile(res.Path)
	b, err := readExifBlock(data)
	if err != nil {
		t.Fatalf("readExifBlock() error = %v", err)
	}
	if b.order != binary.BigEndian {
		t.Error("output should keep the source byte order")
	}
	if b.sourceOrientation() != 1 {
		t.Errorf("orientation = %d, want 1", b.sourceOrientation())
	}
	cfg := decodeConfig(t, res.Path)
	if cfg.Width <= cfg.Height {
		t.Errorf("decoded %dx%d, want landscape", cfg.Width, cfg.Height)
	}
}

// TestCompress_uniqueOutputName verifies a .png to .jpg rename never overwrites.
func TestCompress_uniqueOutputName(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "tag.jpg"), []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(dir, "tag.png")
	f, _ := os.Create(src)
	png.Encode(f, image.NewGray(image.Rect(0, 0, 10, 10)))
	f.Close()

	res, err := Compress(src, outDir, testOptions())
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if filepath.Base(res.Path) != "tag_1.jpg" {
		t.Errorf("output name = %s, want tag_1.jpg", filepath.Base(res.Path))
	}
	existing, _ := os.ReadFile(filepath.Join(outDir, "tag.jpg"))
	if string(existing) != "existing" {
		t.Error("existing file was overwritten")
	}
}

// TestCompress_missingInput verifies read failures surface as errors.
func TestCompress_missingInput(t *testing.T) {
	if _, err := Compress(filepath.Join(t.TempDir(), "gone.jpg"), t.TempDir(), testOptions()); err == nil {
		t.Error("Compress() with missing input should fail")
	}
}

// TestCompress_invalidOptions verifies options are checked before any work.
func TestCompress_invalidOptions(t *testing.T) {
	opts := testOptions()
	opts.MinQuality = 95
	if _, err := Compress("unused.jpg", t.TempDir(), opts); err == nil {
		t.Error("Compress() with invalid options should fail")
	}
}
