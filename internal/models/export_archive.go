package models

import "time"

// ExportArchive records one finished export job.
type ExportArchive struct {
	ID            UUID   `json:"id"`
	FilePath      string `json:"file_path"`
	Handle        string `json:"handle"`
	Checksum      string `json:"checksum"` // SHA-256
	SizeBytes     int64  `json:"size_bytes"`
	RecordCount   int    `json:"record_count"`
	PhotoCount    int    `json:"photo_count"`
	DroppedPhotos int    `json:"dropped_photos"`
	CreatedAt     int64  `json:"created_at"` // unix millis
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (e *ExportArchive) CreatedAtTime() time.Time {
	return time.UnixMilli(e.CreatedAt)
}
