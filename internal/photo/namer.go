package photo

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// exifTimeLayout is the EXIF DateTime format.
const exifTimeLayout = "2006:01:02 15:04:05"

// Namer derives export file names for photo references.
type Namer struct {
	resolver Resolver
}

// NewNamer creates a Namer reading resource details through resolver.
func NewNamer(resolver Resolver) *Namer {
	return &Namer{resolver: resolver}
}

// NameFor returns the file name for the photo at index within a record.
// The first non-empty candidate wins:
//  1. the resource's display name, trimmed
//  2. IMG_<yyyyMMdd>_<HHmmss>[_<subsec>]<ext> from the EXIF capture time
//  3. p_<recordID>__<index+1><ext>
//
// The result depends only on the resource and the arguments. Collisions are
// resolved separately by EnsureUnique.
func (n *Namer) NameFor(ref, recordID string, index int) string {
	if name := strings.TrimSpace(n.resolver.DisplayName(ref)); name != "" {
		return name
	}

	ext := ExtensionFor(n.resolver.ContentType(ref))
	if stamp, ok := n.captureStamp(ref); ok {
		return "IMG_" + stamp + ext
	}
	return fmt.Sprintf("p_%s__%d%s", recordID, index+1, ext)
}

// captureStamp reads the capture time of the referenced resource.
func (n *Namer) captureStamp(ref string) (string, bool) {
	rc, err := n.resolver.Open(ref)
	if err != nil {
		return "", false
	}
	defer rc.Close()
	return CaptureStamp(rc)
}

// CaptureStamp formats the EXIF DateTimeOriginal of an image as
// yyyyMMdd_HHmmss, followed by _<subsec> zero-padded to three digits when
// SubSecTimeOriginal is present.
func CaptureStamp(r io.Reader) (string, bool) {
	x, err := exif.Decode(r)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return "", false
	}

	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return "", false
	}
	raw, err := tag.StringVal()
	if err != nil {
		return "", false
	}
	taken, err := time.Parse(exifTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}

	stamp := taken.Format("20060102_150405")
	if tag, err := x.Get(exif.SubSecTimeOriginal); err == nil {
		if sub, err := tag.StringVal(); err == nil {
			if sub = strings.TrimSpace(sub); sub != "" {
				stamp += "_" + padSubsec(sub)
			}
		}
	}
	return stamp, true
}

func padSubsec(sub string) string {
	for len(sub) < 3 {
		sub = "0" + sub
	}
	return sub
}

// ExtensionFor maps a content type to a file extension. Unknown types map to .jpg.
func ExtensionFor(contentType string) string {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
