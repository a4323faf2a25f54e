// Package scheduler runs exports on a fixed interval and prunes old archives.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/export"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
)

// ExportInterval defines the scheduling frequency.
type ExportInterval string

const (
	IntervalManual  ExportInterval = "manual"
	IntervalDaily   ExportInterval = "daily"
	IntervalWeekly  ExportInterval = "weekly"
	IntervalMonthly ExportInterval = "monthly"
)

// SchedulerConfig holds the scheduler configuration.
type SchedulerConfig struct {
	Interval       ExportInterval
	RetentionCount int    // archives to keep, 0 keeps all
	ArchiveDir     string // where export archives are written
}

// ConfigFrom builds a SchedulerConfig from the application config.
func ConfigFrom(c config.Config) *SchedulerConfig {
	interval := ExportInterval(strings.ToLower(c.Schedule.Interval))
	if interval == "" {
		interval = IntervalManual
	}
	return &SchedulerConfig{
		Interval:       interval,
		RetentionCount: c.Schedule.RetentionCount,
		ArchiveDir:     c.CacheDir,
	}
}

// Scheduler manages automatic exports.
type Scheduler struct {
	service  export.ServiceInterface
	config   *SchedulerConfig
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	runMu    sync.Mutex
}

// NewScheduler creates a new export scheduler.
func NewScheduler(service export.ServiceInterface, config *SchedulerConfig) *Scheduler {
	if config.RetentionCount < 0 {
		config.RetentionCount = 0
	}
	return &Scheduler{
		service: service,
		config:  config,
		stopCh:  make(chan struct{}),
	}
}

// Start runs one export right away and then one per interval until Stop is
// called or ctx ends. A manual interval starts nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.Interval == IntervalManual {
		logging.Info("Export scheduler in manual mode")
		return nil
	}

	dur, err := s.intervalDuration()
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	s.ticker = time.NewTicker(dur)
	logging.Info("Export scheduler started", map[string]interface{}{
		"interval":        string(s.config.Interval),
		"retention_count": s.config.RetentionCount,
	})

	go func() {
		s.runOnce(ctx)
		for {
			select {
			case <-s.ticker.C:
				s.runOnce(ctx)
			case <-s.stopCh:
				logging.Info("Export scheduler stopped")
				return
			case <-ctx.Done():
				logging.Info("Export scheduler context cancelled")
				return
			}
		}
	}()
	return nil
}

// Stop shuts down the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.ticker != nil {
			s.ticker.Stop()
		}
	})
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.runExport(ctx); err != nil {
		logging.Error("Scheduled export failed", err)
	}
}

// runExport performs one export and then applies the retention policy.
// Retention problems are logged and do not fail the run.
func (s *Scheduler) runExport(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	result, err := s.service.Export(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	logging.Info("Scheduled export completed", map[string]interface{}{
		"archive":    result.ArchivePath,
		"size_bytes": result.SizeBytes,
		"records":    result.RecordCount,
	})

	if s.config.RetentionCount > 0 {
		if err := s.applyRetentionPolicy(); err != nil {
			logging.Error("Retention policy failed", err)
		}
	}
	return nil
}

// intervalDuration converts the interval to a time.Duration.
func (s *Scheduler) intervalDuration() (time.Duration, error) {
	switch s.config.Interval {
	case IntervalDaily:
		return 24 * time.Hour, nil
	case IntervalWeekly:
		return 7 * 24 * time.Hour, nil
	case IntervalMonthly:
		// Approximate as 30 days
		return 30 * 24 * time.Hour, nil
	case IntervalManual:
		return 0, fmt.Errorf("manual interval has no duration")
	default:
		return 0, fmt.Errorf("unknown interval: %s", s.config.Interval)
	}
}

// applyRetentionPolicy removes the oldest archives beyond RetentionCount.
func (s *Scheduler) applyRetentionPolicy() error {
	archives, err := listArchives(s.config.ArchiveDir)
	if err != nil {
		return fmt.Errorf("failed to list archives: %w", err)
	}
	if len(archives) <= s.config.RetentionCount {
		return nil
	}

	// Oldest first
	sort.Slice(archives, func(i, j int) bool {
		if archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].Path < archives[j].Path
		}
		return archives[i].CreatedAt.Before(archives[j].CreatedAt)
	})

	for _, archive := range archives[:len(archives)-s.config.RetentionCount] {
		if err := os.Remove(archive.Path); err != nil {
			logging.Warn("Failed to delete old archive", map[string]interface{}{
				"path":  archive.Path,
				"error": err.Error(),
			})
			continue
		}
		logging.Info("Deleted old archive", map[string]interface{}{"path": archive.Path})
	}
	return nil
}

// ArchiveInfo describes an export archive on disk.
type ArchiveInfo struct {
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// listArchives returns the export archives directly inside dir.
func listArchives(dir string) ([]*ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var archives []*ArchiveInfo
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, "inventory_export_") || filepath.Ext(name) != ".zip" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, &ArchiveInfo{
			Path:      filepath.Join(dir, name),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	return archives, nil
}
