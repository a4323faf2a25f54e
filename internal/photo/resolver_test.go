package photo

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// TestFileResolver_Path verifies reference parsing.
func TestFileResolver_Path(t *testing.T) {
	r := NewFileResolver()

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"/tmp/a.jpg", "/tmp/a.jpg", false},
		{"file:///tmp/b%20c.jpg", "/tmp/b c.jpg", false},
		{"  /tmp/./d.jpg ", "/tmp/d.jpg", false},
		{"content://media/external/images/1", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := r.Path(tt.ref)
		if (err != nil) != tt.wantErr {
			t.Errorf("Path(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			continue
		}
		if got != filepath.FromSlash(tt.want) {
			t.Errorf("Path(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

// TestFileResolver_resource verifies open, display name and content type.
func TestFileResolver_resource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "box.bin")
	data := jpegBytes(t)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	ref := FileURI(path)

	r := NewFileResolver()
	rc, err := r.Open(ref)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if len(got) != len(data) {
		t.Errorf("Open() read %d bytes, want %d", len(got), len(data))
	}

	if name := r.DisplayName(ref); name != "box.bin" {
		t.Errorf("DisplayName() = %q, want box.bin", name)
	}
	if ct := r.ContentType(ref); ct != "image/jpeg" {
		t.Errorf("ContentType() = %q, want image/jpeg", ct)
	}

	if name := (&FileResolver{}).DisplayName(ref); name != "" {
		t.Errorf("DisplayName() without file names = %q, want empty", name)
	}
}

// TestFileResolver_missing verifies unavailable details degrade to empty values.
func TestFileResolver_missing(t *testing.T) {
	r := NewFileResolver()
	ref := filepath.Join(t.TempDir(), "gone.jpg")

	if _, err := r.Open(ref); err == nil {
		t.Error("Open() on missing file should fail")
	}
	if name := r.DisplayName(ref); name != "" {
		t.Errorf("DisplayName() = %q, want empty", name)
	}
	if ct := r.ContentType(ref); ct != "" {
		t.Errorf("ContentType() = %q, want empty", ct)
	}
}
