package photo

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// PhotosDir is the folder inside an export that holds the photos.
const PhotosDir = "photos"

// DefaultGroup replaces a group label that sanitizes to nothing.
const DefaultGroup = "group"

var unsafeGroupChars = regexp.MustCompile(`[^A-Za-z0-9 _-]`)

// EnsureUnique returns name if no entry with that name exists in dir, and
// otherwise the first of stem_1.ext, stem_2.ext, ... that is free. A leading
// dot is part of the stem.
func EnsureUnique(dir, name string) string {
	stem, ext := splitName(name)
	candidate := name
	for i := 1; exists(filepath.Join(dir, candidate)); i++ {
		candidate = stem + "_" + strconv.Itoa(i) + ext
	}
	return candidate
}

func splitName(name string) (string, string) {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return name, ""
	}
	return name[:dot], name[dot:]
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// SanitizeGroup keeps letters, digits, spaces, dashes and underscores of a
// trimmed group label and replaces anything else with an underscore.
func SanitizeGroup(label string) string {
	s := unsafeGroupChars.ReplaceAllString(strings.TrimSpace(label), "_")
	if s == "" {
		return DefaultGroup
	}
	return s
}

// TargetFolder returns the slash-separated folder, relative to the export
// root, that holds photos for a record with the given group label.
func TargetFolder(group string) string {
	if strings.TrimSpace(group) == "" {
		return PhotosDir
	}
	return path.Join(PhotosDir, SanitizeGroup(group))
}
