package export

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/kimhsiao/purchaselog/backend/internal/models"
)

// ManifestHeader is the fixed column order of the manifest.
var ManifestHeader = []string{"Id", "Description", "Price", "Quantity", "PurchaseDate", "Notes", "PhotoFileNames"}

// FilenameResolver returns the semicolon-joined photo file names exported
// for a record.
type FilenameResolver func(p models.Purchase) string

// WriteManifest writes the header and one row per record, in record order,
// to path. An existing file is truncated.
func WriteManifest(path string, records []models.Purchase, filenames FilenameResolver) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}

	w := bufio.NewWriter(f)
	writeRow(w, ManifestHeader)
	for _, p := range records {
		names := ""
		if filenames != nil {
			names = filenames(p)
		}
		writeRow(w, []string{
			p.ID.String(),
			p.Description,
			FormatPrice(p.PriceCents),
			strconv.Itoa(p.Quantity),
			FormatDate(p.PurchaseDate),
			p.Notes,
			names,
		})
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	return nil
}

func writeRow(w *bufio.Writer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(quoteField(field))
	}
	w.WriteByte('\n')
}

// quoteField wraps a field in double quotes only when it contains a comma,
// a double quote or a line break. Inner quotes are doubled.
func quoteField(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// FormatPrice renders minor units as "$12.34".
func FormatPrice(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// parsePrice reverses FormatPrice.
func parsePrice(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "$")
	whole, frac, _ := strings.Cut(s, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	var cents int64
	if frac != "" {
		if len(frac) != 2 {
			return 0, fmt.Errorf("invalid price %q: want two decimals", s)
		}
		if cents, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return 0, fmt.Errorf("invalid price %q: %w", s, err)
		}
	}
	total := units*100 + cents
	if neg {
		total = -total
	}
	return total, nil
}

// FormatDate renders a calendar date as MM/dd/yyyy.
func FormatDate(d civil.Date) string {
	return fmt.Sprintf("%02d/%02d/%04d", int(d.Month), d.Day, d.Year)
}
