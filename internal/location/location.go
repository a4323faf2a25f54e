// Package location provides the best-effort device position written into
// each export.
package location

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kimhsiao/purchaselog/backend/internal/errors"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
)

// Unavailable is written in place of a position that could not be obtained.
const Unavailable = "UNAVAILABLE"

// Position is a single location fix.
type Position struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	Provider       string    `json:"provider"`
	Time           time.Time `json:"time"`
}

// Locator returns the current position. A nil position with a nil error
// means no fix is available.
type Locator interface {
	Locate(ctx context.Context) (*Position, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (*Position, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context) (*Position, error) {
	return f(ctx)
}

// StaticLocator always reports the same fix, stamped with the time of the call.
type StaticLocator struct {
	Position Position
}

// Locate returns a copy of the configured position.
func (s StaticLocator) Locate(ctx context.Context) (*Position, error) {
	p := s.Position
	if p.Provider == "" {
		p.Provider = "static"
	}
	p.Time = time.Now()
	return &p, nil
}

// Freshest asks every locator and keeps the most recent fix. Locators that
// fail or have no fix are skipped.
func Freshest(locators ...Locator) Locator {
	return LocatorFunc(func(ctx context.Context) (*Position, error) {
		var best *Position
		for _, l := range locators {
			p, err := l.Locate(ctx)
			if err != nil || p == nil {
				continue
			}
			if best == nil || p.Time.After(best.Time) {
				best = p
			}
		}
		return best, nil
	})
}

// Acquire makes one bounded attempt to read a position. It returns an
// ErrLocationUnavailable error when the locator fails, has no fix or does
// not answer within timeout.
func Acquire(ctx context.Context, locator Locator, timeout time.Duration) (*Position, error) {
	if locator == nil {
		return nil, errors.New(errors.ErrLocationUnavailable, "no locator configured")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type answer struct {
		pos *Position
		err error
	}
	done := make(chan answer, 1)
	go func() {
		p, err := locator.Locate(ctx)
		done <- answer{p, err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrLocationUnavailable, "location timed out", ctx.Err())
	case a := <-done:
		if a.err != nil {
			return nil, errors.Wrap(errors.ErrLocationUnavailable, "locator failed", a.err)
		}
		if a.pos == nil {
			return nil, errors.New(errors.ErrLocationUnavailable, "no position fix")
		}
		return a.pos, nil
	}
}

// FormatNote renders a position as the single line stored in location.txt,
// or Unavailable when p is nil.
func FormatNote(p *Position) string {
	if p == nil {
		return Unavailable + "\n"
	}
	return fmt.Sprintf("lat=%s, lon=%s, accuracyMeters=%s, provider=%s, timestampMs=%d\n",
		formatFloat(p.Latitude),
		formatFloat(p.Longitude),
		formatFloat(p.AccuracyMeters),
		p.Provider,
		p.Time.UnixMilli())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseNote reads a note written by FormatNote. It returns nil for the
// Unavailable sentinel.
func parseNote(note string) (*Position, error) {
	note = strings.TrimSpace(note)
	if note == Unavailable {
		return nil, nil
	}

	p := &Position{}
	for _, field := range strings.Split(note, ", ") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("malformed location field %q", field)
		}
		var err error
		switch key {
		case "lat":
			p.Latitude, err = strconv.ParseFloat(value, 64)
		case "lon":
			p.Longitude, err = strconv.ParseFloat(value, 64)
		case "accuracyMeters":
			p.AccuracyMeters, err = strconv.ParseFloat(value, 64)
		case "provider":
			p.Provider = value
		case "timestampMs":
			var ms int64
			ms, err = strconv.ParseInt(value, 10, 64)
			p.Time = time.UnixMilli(ms)
		}
		if err != nil {
			return nil, fmt.Errorf("malformed location field %q: %w", field, err)
		}
	}
	return p, nil
}

// WriteNote acquires a position and writes the note to path. Location
// problems degrade to the Unavailable line; only the file write can fail.
// It reports whether a position was written.
func WriteNote(ctx context.Context, path string, locator Locator, timeout time.Duration) (bool, error) {
	pos, err := Acquire(ctx, locator, timeout)
	if err != nil {
		logging.Warn("Location unavailable for export", map[string]interface{}{
			"code":  string(errors.CodeOf(err)),
			"error": err.Error(),
		})
	}
	if err := os.WriteFile(path, []byte(FormatNote(pos)), 0644); err != nil {
		return false, err
	}
	return pos != nil, nil
}
