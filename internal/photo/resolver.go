// Package photo names, places and imports the photos attached to purchases.
package photo

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Resolver gives access to the resource behind a stored photo reference.
// DisplayName and ContentType return "" when the information is unavailable.
type Resolver interface {
	Open(ref string) (io.ReadCloser, error)
	DisplayName(ref string) string
	ContentType(ref string) string
}

// FileResolver resolves file:// URIs and plain filesystem paths.
type FileResolver struct {
	// UseFileNames reports the base file name as the display name. When
	// false, names come from capture metadata or position instead.
	UseFileNames bool
}

// NewFileResolver creates a FileResolver that reports file names.
func NewFileResolver() *FileResolver {
	return &FileResolver{UseFileNames: true}
}

// Path returns the local filesystem path for ref.
func (r *FileResolver) Path(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty photo reference")
	}
	if !strings.Contains(ref, "://") {
		return filepath.Clean(ref), nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid photo reference %q: %w", ref, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported photo reference scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

// Open opens the referenced file for reading.
func (r *FileResolver) Open(ref string) (io.ReadCloser, error) {
	path, err := r.Path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo: %w", err)
	}
	return f, nil
}

// DisplayName returns the file's base name.
func (r *FileResolver) DisplayName(ref string) string {
	if !r.UseFileNames {
		return ""
	}
	path, err := r.Path(ref)
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return filepath.Base(path)
}

// ContentType sniffs the file's content type.
func (r *FileResolver) ContentType(ref string) string {
	path, err := r.Path(ref)
	if err != nil {
		return ""
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return mt.String()
}

// FileURI returns the file:// URI for an absolute or relative path.
func FileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
