// Package models provides data model definitions for the purchase log.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// UUID is a wrapper around string for record id type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Purchase is one logged purchase.
type Purchase struct {
	ID           UUID       `json:"id"`
	Description  string     `json:"description"`
	PriceCents   int64      `json:"price_cents"`
	Quantity     int        `json:"quantity"`
	PurchaseDate civil.Date `json:"purchase_date"`
	CreatedAt    time.Time  `json:"created_at"`
	Notes        string     `json:"notes"`
	GroupName    string     `json:"group_name,omitempty"` // empty means no group
	PhotoRefs    []string   `json:"photo_refs"`
}

// HasGroup reports whether the purchase carries a non-blank group label.
func (p *Purchase) HasGroup() bool {
	return strings.TrimSpace(p.GroupName) != ""
}

// Validate checks the record invariants.
func (p *Purchase) Validate() error {
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("price must be non-negative, got %d", p.PriceCents)
	}
	if p.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d", p.Quantity)
	}
	if !p.PurchaseDate.IsValid() {
		return fmt.Errorf("purchase date %v is invalid", p.PurchaseDate)
	}
	return nil
}

// EncodePhotoRefs serializes a photo reference list for storage.
func EncodePhotoRefs(refs []string) string {
	if len(refs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(refs)
	if err != nil {
		// []string always marshals
		return "[]"
	}
	return string(data)
}

// DecodePhotoRefs parses a stored reference list. It accepts a JSON array,
// the older bracketed "[a, b]" form, or one bare reference.
func DecodePhotoRefs(stored string) []string {
	s := strings.TrimSpace(stored)
	if s == "" {
		return nil
	}

	var refs []string
	if err := json.Unmarshal([]byte(s), &refs); err == nil {
		return compactRefs(refs)
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return compactRefs(strings.Split(s[1:len(s)-1], ","))
	}
	return []string{s}
}

func compactRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
