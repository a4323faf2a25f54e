package export

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/errors"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
)

// CacheClearResult reports what ClearCache removed.
type CacheClearResult struct {
	BytesFreed     int64 `json:"bytes_freed"`
	EntriesRemoved int   `json:"entries_removed"`
	// EntriesSkipped counts entries left in place for running jobs.
	EntriesSkipped int `json:"entries_skipped,omitempty"`
}

// WipeResult reports what WipeAll removed.
type WipeResult struct {
	RecordsDeleted int               `json:"records_deleted"`
	PhotosDeleted  int               `json:"photos_deleted"`
	PhotosFailed   int               `json:"photos_failed"`
	Cache          *CacheClearResult `json:"cache,omitempty"`
}

// MatchesRule reports whether a cache entry name matches any rule. Names
// and rules are compared case-insensitively.
func MatchesRule(name string, rules []config.CacheRule) bool {
	n := strings.ToLower(name)
	for _, r := range rules {
		if r.Prefix == "" && r.Suffix == "" {
			continue
		}
		if strings.HasPrefix(n, strings.ToLower(r.Prefix)) && strings.HasSuffix(n, strings.ToLower(r.Suffix)) {
			return true
		}
	}
	return false
}

// ClearCache removes the top-level cache entries created by exports, as
// selected by the configured rules. Entries owned by a running job and
// entries that cannot be removed are skipped and not counted.
func (s *Service) ClearCache() (*CacheClearResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &CacheClearResult{}

	entries, err := os.ReadDir(s.settings.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, errors.Wrap(errors.ErrCacheClear, "failed to list cache directory", err)
	}

	for _, e := range entries {
		if !MatchesRule(e.Name(), s.settings.CacheRules) {
			continue
		}
		if _, busy := s.active[e.Name()]; busy {
			result.EntriesSkipped++
			continue
		}
		path := filepath.Join(s.settings.CacheDir, e.Name())
		size := sizeOf(path)
		if err := os.RemoveAll(path); err != nil {
			logging.Warn("Failed to remove cache entry", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		result.BytesFreed += size
		result.EntriesRemoved++
	}

	logging.Info("Export cache cleared", map[string]interface{}{
		"bytes_freed":     result.BytesFreed,
		"entries_removed": result.EntriesRemoved,
		"entries_skipped": result.EntriesSkipped,
	})
	return result, nil
}

// sizeOf returns the total size of the regular files at or under path.
func sizeOf(path string) int64 {
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// isWipeTarget reports whether a file in the photos directory is a photo
// copy made by this application.
func isWipeTarget(name string, w config.Wipe) bool {
	n := strings.ToLower(name)
	if !strings.HasSuffix(n, strings.ToLower(w.PhotoSuffix)) {
		return false
	}
	for _, p := range w.PhotoPrefixes {
		if p != "" && strings.HasPrefix(n, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// WipeAll deletes the photo copies in the photos directory, then every
// record, then clears the export cache. Photo and cache failures are
// counted or logged; only a failure to delete the records is returned.
func (s *Service) WipeAll(ctx context.Context) (*WipeResult, error) {
	result := &WipeResult{}

	entries, err := os.ReadDir(s.settings.PhotosDir)
	if err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to list photos directory", map[string]interface{}{
			"path":  s.settings.PhotosDir,
			"error": err.Error(),
		})
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || !isWipeTarget(e.Name(), s.settings.Wipe) {
			continue
		}
		path := filepath.Join(s.settings.PhotosDir, e.Name())
		if err := os.Remove(path); err != nil {
			result.PhotosFailed++
			logging.Warn("Failed to delete photo", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		result.PhotosDeleted++
	}

	n, err := s.store.DeleteAllPurchases(ctx)
	if err != nil {
		return result, errors.Wrap(errors.ErrWipe, "failed to delete records", err)
	}
	result.RecordsDeleted = n

	cache, err := s.ClearCache()
	if err != nil {
		logging.Warn("Cache clear after wipe failed", map[string]interface{}{"error": err.Error()})
	} else {
		result.Cache = cache
	}

	logging.Info("All purchases wiped", map[string]interface{}{
		"records_deleted": result.RecordsDeleted,
		"photos_deleted":  result.PhotosDeleted,
		"photos_failed":   result.PhotosFailed,
	})
	return result, nil
}
