package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	exifv3 "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// TIFF tag ids used when rebuilding an EXIF block.
const (
	tagImageDescription    uint16 = 0x010E
	tagMake                uint16 = 0x010F
	tagModel               uint16 = 0x0110
	tagOrientation         uint16 = 0x0112
	tagDateTime            uint16 = 0x0132
	tagExifIFD             uint16 = 0x8769
	tagGPSIFD              uint16 = 0x8825
	tagExposureTime        uint16 = 0x829A
	tagFNumber             uint16 = 0x829D
	tagISO                 uint16 = 0x8827
	tagDateTimeOriginal    uint16 = 0x9003
	tagDateTimeDigitized   uint16 = 0x9004
	tagOffsetTime          uint16 = 0x9010
	tagOffsetTimeOriginal  uint16 = 0x9011
	tagOffsetTimeDigitized uint16 = 0x9012
	tagFocalLength         uint16 = 0x920A
	tagUserComment         uint16 = 0x9286
	tagSubSecTime          uint16 = 0x9290
	tagSubSecOriginal      uint16 = 0x9291
	tagSubSecDigitized     uint16 = 0x9292
)

var (
	ifd0Allowed = map[uint16]bool{
		tagImageDescription: true,
		tagMake:             true,
		tagModel:            true,
		tagDateTime:         true,
	}

	exifAllowed = map[uint16]bool{
		tagDateTimeOriginal:    true,
		tagDateTimeDigitized:   true,
		tagSubSecTime:          true,
		tagSubSecOriginal:      true,
		tagSubSecDigitized:     true,
		tagOffsetTime:          true,
		tagOffsetTimeOriginal:  true,
		tagOffsetTimeDigitized: true,
		tagFocalLength:         true,
		tagFNumber:             true,
		tagExposureTime:        true,
		tagISO:                 true,
		tagUserComment:         true,
	}

	// GPS latitude/longitude with refs, altitude with ref, time and date stamps.
	gpsAllowed = map[uint16]bool{
		0x0001: true,
		0x0002: true,
		0x0003: true,
		0x0004: true,
		0x0005: true,
		0x0006: true,
		0x0007: true,
		0x001D: true,
	}
)

// exifEntry is one IFD entry. val holds the value bytes in the block's byte order.
type exifEntry struct {
	id    uint16
	typ   tiff.DataType
	count uint32
	val   []byte
}

// exifBlock is the allow-listed subset of a source image's EXIF metadata.
type exifBlock struct {
	order       binary.ByteOrder
	ifd0        []exifEntry
	exif        []exifEntry
	gps         []exifEntry
	orientation *exifEntry
}

func entryFrom(t *tiff.Tag) exifEntry {
	return exifEntry{id: t.Id, typ: t.Type, count: t.Count, val: append([]byte(nil), t.Val...)}
}

func pick(tags []*tiff.Tag, allowed map[uint16]bool) []exifEntry {
	var out []exifEntry
	for _, t := range tags {
		if allowed[t.Id] && len(t.Val) > 0 {
			out = append(out, entryFrom(t))
		}
	}
	return out
}

// readExifBlock extracts the allow-listed tags from JPEG data. It returns an
// error when the data carries no readable EXIF block.
func readExifBlock(data []byte) (*exifBlock, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("failed to decode exif: %w", err)
	}
	if len(x.Tiff.Dirs) == 0 {
		return nil, fmt.Errorf("exif has no IFD0")
	}

	ifd0 := x.Tiff.Dirs[0]
	b := &exifBlock{order: x.Tiff.Order, ifd0: pick(ifd0.Tags, ifd0Allowed)}
	for _, t := range ifd0.Tags {
		switch t.Id {
		case tagOrientation:
			e := entryFrom(t)
			b.orientation = &e
		case tagExifIFD:
			if dir := subDir(x, t); dir != nil {
				b.exif = pick(dir.Tags, exifAllowed)
			}
		case tagGPSIFD:
			if dir := subDir(x, t); dir != nil {
				b.gps = pick(dir.Tags, gpsAllowed)
			}
		}
	}
	return b, nil
}

// subDir decodes the IFD a pointer tag refers to. goexif only maps the
// fields it knows, so sub-IFDs are decoded again to reach the OffsetTime tags.
func subDir(x *exif.Exif, pointer *tiff.Tag) *tiff.Dir {
	offset, err := pointer.Int64(0)
	if err != nil {
		return nil
	}
	r := bytes.NewReader(x.Raw)
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil
	}
	dir, _, err := tiff.DecodeDir(r, x.Tiff.Order)
	if err != nil {
		return nil
	}
	return dir
}

// sourceOrientation returns the orientation value, or 0 when absent.
func (b *exifBlock) sourceOrientation() int {
	if b == nil || b.orientation == nil || len(b.orientation.val) < 2 {
		return 0
	}
	return int(b.order.Uint16(b.orientation.val))
}

// withOrientation returns a copy of b whose orientation tag is set to v.
func (b *exifBlock) withOrientation(v uint16) *exifBlock {
	c := *b
	val := make([]byte, 2)
	c.order.PutUint16(val, v)
	c.orientation = &exifEntry{id: tagOrientation, typ: tiff.DTShort, count: 1, val: val}
	return &c
}

func (b *exifBlock) empty() bool {
	return len(b.ifd0) == 0 && len(b.exif) == 0 && len(b.gps) == 0 && b.orientation == nil
}

// Standard IFD paths used by the go-exif builder.
const (
	rootIfdPath = "IFD"
	exifIfdPath = "IFD/Exif"
	gpsIfdPath  = "IFD/GPSInfo"
)

// maxSegment is the largest payload a JPEG marker length field can describe.
const maxSegment = 0xFFFF

// exifSegment is an allow-list block encoded for a JPEG APP1 segment.
type exifSegment struct {
	ib *exifv3.IfdBuilder
	// size is the full segment length, marker included.
	size int
}

func (s *exifSegment) len() int {
	if s == nil {
		return 0
	}
	return s.size
}

// builder returns the block as an IFD tree. Tag values are copied as raw
// bytes in the block's byte order.
func (b *exifBlock) builder() (*exifv3.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("failed to load ifd mapping: %w", err)
	}
	root := exifv3.NewIfdBuilder(im, exifv3.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, b.order)

	ifd0 := append([]exifEntry(nil), b.ifd0...)
	if b.orientation != nil {
		ifd0 = append(ifd0, *b.orientation)
	}
	if err := addEntries(root, rootIfdPath, ifd0, b.order); err != nil {
		return nil, err
	}
	for _, sub := range []struct {
		path    string
		entries []exifEntry
	}{{exifIfdPath, b.exif}, {gpsIfdPath, b.gps}} {
		if len(sub.entries) == 0 {
			continue
		}
		child, err := exifv3.GetOrCreateIbFromRootIb(root, sub.path)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", sub.path, err)
		}
		if err := addEntries(child, sub.path, sub.entries, b.order); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// addEntries adds entries to ib in ascending tag order.
func addEntries(ib *exifv3.IfdBuilder, path string, entries []exifEntry, order binary.ByteOrder) error {
	sorted := append([]exifEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })
	for _, e := range sorted {
		value := exifv3.NewIfdBuilderTagValueFromBytes(e.val)
		bt := exifv3.NewBuilderTag(path, e.id, exifcommon.TagTypePrimitive(e.typ), value, order)
		if err := ib.Add(bt); err != nil {
			return fmt.Errorf("failed to add tag 0x%04x to %s: %w", e.id, path, err)
		}
	}
	return nil
}

// segment encodes the block. It returns nil when the block is empty or too
// large for a single APP1 segment.
func (b *exifBlock) segment() (*exifSegment, error) {
	if b == nil || b.empty() {
		return nil, nil
	}
	ib, err := b.builder()
	if err != nil {
		return nil, err
	}
	payload, err := exifv3.NewIfdByteEncoder().EncodeToExif(ib)
	if err != nil {
		return nil, fmt.Errorf("failed to encode exif: %w", err)
	}
	length := 2 + len(exifHeader) + len(payload)
	if length > maxSegment {
		return nil, nil
	}
	return &exifSegment{ib: ib, size: 2 + length}, nil
}

var exifHeader = []byte("Exif\x00\x00")

// embedExif writes seg into jpegData, replacing any EXIF segment it carries.
// A nil seg returns the data unchanged.
func embedExif(jpegData []byte, seg *exifSegment) ([]byte, error) {
	if len(jpegData) < 2 || jpegData[0] != 0xFF || jpegData[1] != 0xD8 {
		return nil, fmt.Errorf("not a JPEG stream")
	}
	if seg == nil {
		return jpegData, nil
	}
	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(jpegData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jpeg: %w", err)
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("unexpected jpeg structure %T", mc)
	}
	if err := sl.SetExif(seg.ib); err != nil {
		return nil, fmt.Errorf("failed to set exif: %w", err)
	}
	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func asciiEntry(id uint16, s string) exifEntry {
	val := append([]byte(s), 0)
	return exifEntry{id: id, typ: tiff.DTAscii, count: uint32(len(val)), val: val}
}

// HasExif reports whether data carries a decodable EXIF block.
func HasExif(data []byte) bool {
	_, err := readExifBlock(data)
	return err == nil
}

// StampCaptureTime writes a fresh EXIF block holding DateTimeOriginal and
// OffsetTimeOriginal for t into JPEG data that has none. Data that already
// carries EXIF is returned unchanged.
func StampCaptureTime(jpegData []byte, t time.Time) ([]byte, error) {
	if HasExif(jpegData) {
		return jpegData, nil
	}
	b := &exifBlock{
		order: binary.BigEndian,
		exif: []exifEntry{
			asciiEntry(tagDateTimeOriginal, t.Format(exifTimeLayout)),
			asciiEntry(tagOffsetTimeOriginal, t.Format("-07:00")),
		},
	}
	seg, err := b.segment()
	if err != nil {
		return nil, err
	}
	return embedExif(jpegData, seg)
}

// exifTimeLayout is the EXIF DateTime format.
const exifTimeLayout = "2006:01:02 15:04:05"
