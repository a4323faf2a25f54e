// Package uuid generates and checks purchase record ids.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// New generates a new random (v4) record id.
func New() string {
	return uuid.New().String()
}

// Normalize parses s and returns its canonical lowercase form.
// Any RFC 4122 version is accepted so ids minted elsewhere survive an import.
func Normalize(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid record id %q: %w", s, err)
	}
	return id.String(), nil
}

// IsValid reports whether s parses as a UUID.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
