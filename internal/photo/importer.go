package photo

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kimhsiao/purchaselog/backend/internal/logging"
	"github.com/kimhsiao/purchaselog/backend/internal/media"
)

// Importer copies picked photos into the app's photo directory under
// timestamped names.
type Importer struct {
	dir      string
	resolver Resolver
	now      func() time.Time
}

// NewImporter creates an Importer writing into dir.
func NewImporter(dir string, resolver Resolver) *Importer {
	return &Importer{dir: dir, resolver: resolver, now: time.Now}
}

// Import copies the referenced photo to IMG_<stamp>.jpg and returns the new
// file's URI. The stamp is the source's EXIF capture time when present and
// the current time otherwise. A JPEG without EXIF gets DateTimeOriginal and
// OffsetTimeOriginal written for the time used.
func (i *Importer) Import(ref string) (string, error) {
	rc, err := i.resolver.Open(ref)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}

	now := i.now()
	stamp, ok := CaptureStamp(bytes.NewReader(data))
	if !ok {
		stamp = fmt.Sprintf("%s_%03d", now.Format("20060102_150405"), now.Nanosecond()/int(time.Millisecond))
	}

	if media.Sniff(data) == media.MIMEJPEG && !media.HasExif(data) {
		stamped, err := media.StampCaptureTime(data, now)
		if err != nil {
			logging.Warn("Could not stamp capture time", map[string]interface{}{
				"photo_ref": ref,
				"error":     err.Error(),
			})
		} else {
			data = stamped
		}
	}

	if err := os.MkdirAll(i.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create photos directory: %w", err)
	}
	dest := filepath.Join(i.dir, EnsureUnique(i.dir, "IMG_"+stamp+".jpg"))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}

	logging.Info("Photo imported", map[string]interface{}{
		"photo_ref": ref,
		"path":      dest,
		"bytes":     len(data),
	})
	return FileURI(dest), nil
}

// Discard removes a copy made by Import. References outside the photo
// directory are refused.
func (i *Importer) Discard(ref string) error {
	path, err := (&FileResolver{}).Path(ref)
	if err != nil {
		return err
	}
	if filepath.Dir(path) != filepath.Clean(i.dir) {
		return fmt.Errorf("photo %s is not in %s", path, i.dir)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove photo: %w", err)
	}
	return nil
}
