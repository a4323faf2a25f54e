// Package scheduler tests for automatic export scheduling.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/export"
)

// =====================================================
// NewScheduler Tests
// =====================================================

// TestNewScheduler_default verifies the scheduler starts idle.
func TestNewScheduler_default(t *testing.T) {
	service := export.NewMockService()
	cfg := &SchedulerConfig{Interval: IntervalDaily, RetentionCount: 5}

	s := NewScheduler(service, cfg)
	if s.service != service || s.config != cfg {
		t.Error("NewScheduler() did not keep service and config")
	}
	if s.ticker != nil {
		t.Error("ticker should be nil before Start")
	}
}

// TestNewScheduler_negativeRetention verifies negative retention keeps everything.
func TestNewScheduler_negativeRetention(t *testing.T) {
	s := NewScheduler(export.NewMockService(), &SchedulerConfig{Interval: IntervalDaily, RetentionCount: -1})
	if s.config.RetentionCount != 0 {
		t.Errorf("RetentionCount = %d, want 0", s.config.RetentionCount)
	}
}

// TestConfigFrom verifies application settings map onto the scheduler.
func TestConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Schedule = config.Schedule{Interval: "Weekly", RetentionCount: 3}

	got := ConfigFrom(cfg)
	if got.Interval != IntervalWeekly || got.RetentionCount != 3 || got.ArchiveDir != cfg.CacheDir {
		t.Errorf("ConfigFrom() = %+v", got)
	}

	cfg.Schedule.Interval = ""
	if got := ConfigFrom(cfg); got.Interval != IntervalManual {
		t.Errorf("empty interval = %q, want manual", got.Interval)
	}
}

// =====================================================
// intervalDuration Tests
// =====================================================

// TestScheduler_intervalDuration verifies each interval.
func TestScheduler_intervalDuration(t *testing.T) {
	tests := []struct {
		interval ExportInterval
		want     time.Duration
		wantErr  bool
	}{
		{IntervalDaily, 24 * time.Hour, false},
		{IntervalWeekly, 7 * 24 * time.Hour, false},
		{IntervalMonthly, 30 * 24 * time.Hour, false},
		{IntervalManual, 0, true},
		{"hourly", 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.interval), func(t *testing.T) {
			s := NewScheduler(export.NewMockService(), &SchedulerConfig{Interval: tt.interval})
			got, err := s.intervalDuration()
			if (err != nil) != tt.wantErr {
				t.Fatalf("intervalDuration() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("intervalDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =====================================================
// Start / Stop Tests
// =====================================================

// TestScheduler_Start_manual verifies manual mode runs nothing.
func TestScheduler_Start_manual(t *testing.T) {
	service := export.NewMockService()
	s := NewScheduler(service, &SchedulerConfig{Interval: IntervalManual})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.ticker != nil {
		t.Error("manual mode should not create a ticker")
	}
	time.Sleep(20 * time.Millisecond)
	if n := service.GetCallCount(); n != 0 {
		t.Errorf("Export called %d times, want 0", n)
	}
}

// TestScheduler_Start_invalidInterval verifies an unknown interval is rejected.
func TestScheduler_Start_invalidInterval(t *testing.T) {
	s := NewScheduler(export.NewMockService(), &SchedulerConfig{Interval: "hourly"})
	if err := s.Start(context.Background()); err == nil {
		t.Error("Start() should fail for an unknown interval")
	}
}

// TestScheduler_Start_runsInitialExport verifies an export runs right after Start.
func TestScheduler_Start_runsInitialExport(t *testing.T) {
	service := export.NewMockService()
	s := NewScheduler(service, &SchedulerConfig{Interval: IntervalDaily})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for service.GetCallCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if service.GetCallCount() == 0 {
		t.Error("initial export did not run")
	}
}

// TestScheduler_Stop_idempotent verifies Stop can be called twice.
func TestScheduler_Stop_idempotent(t *testing.T) {
	s := NewScheduler(export.NewMockService(), &SchedulerConfig{Interval: IntervalWeekly})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
}

// TestScheduler_Start_contextCancellation verifies the loop exits with its context.
func TestScheduler_Start_contextCancellation(t *testing.T) {
	service := export.NewMockService()
	service.SetExportDelay(time.Hour)
	s := NewScheduler(service, &SchedulerConfig{Interval: IntervalDaily})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	s.Stop()
}

// =====================================================
// Retention Tests
// =====================================================

func writeArchive(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("zip"), 0644); err != nil {
		t.Fatal(err)
	}
	mt := time.Now().Add(-age)
	if err := os.Chtimes(p, mt, mt); err != nil {
		t.Fatal(err)
	}
	return p
}

// TestListArchives verifies only export archives are listed.
func TestListArchives(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "inventory_export_1.zip", 0)
	writeArchive(t, dir, "inventory_1.csv", 0)
	writeArchive(t, dir, "other.zip", 0)
	if err := os.Mkdir(filepath.Join(dir, "inventory_export_dir.zip"), 0755); err != nil {
		t.Fatal(err)
	}

	archives, err := listArchives(dir)
	if err != nil {
		t.Fatalf("listArchives() error = %v", err)
	}
	if len(archives) != 1 || filepath.Base(archives[0].Path) != "inventory_export_1.zip" || archives[0].SizeBytes != 3 {
		t.Errorf("listArchives() = %+v", archives)
	}

	archives, err = listArchives(filepath.Join(dir, "missing"))
	if err != nil || len(archives) != 0 {
		t.Errorf("listArchives(missing) = %v, %v", archives, err)
	}
}

// TestScheduler_applyRetentionPolicy verifies the oldest archives are removed.
func TestScheduler_applyRetentionPolicy(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeArchive(t, dir, fmt.Sprintf("inventory_export_%d.zip", i), time.Duration(5-i)*time.Hour))
	}

	s := NewScheduler(export.NewMockService(), &SchedulerConfig{Interval: IntervalDaily, RetentionCount: 2, ArchiveDir: dir})
	if err := s.applyRetentionPolicy(); err != nil {
		t.Fatalf("applyRetentionPolicy() error = %v", err)
	}

	for i, p := range paths {
		_, err := os.Stat(p)
		kept := err == nil
		if want := i >= 3; kept != want {
			t.Errorf("%s kept = %v, want %v", filepath.Base(p), kept, want)
		}
	}
}

// TestScheduler_runExport verifies a failing export is reported.
func TestScheduler_runExport(t *testing.T) {
	service := export.NewMockService()
	s := NewScheduler(service, &SchedulerConfig{Interval: IntervalDaily, RetentionCount: 1, ArchiveDir: t.TempDir()})

	if err := s.runExport(context.Background()); err != nil {
		t.Fatalf("runExport() error = %v", err)
	}

	service.SetShouldSucceed(false)
	if err := s.runExport(context.Background()); err == nil {
		t.Error("runExport() should fail when the export fails")
	}
	if n := service.GetCallCount(); n != 2 {
		t.Errorf("Export called %d times, want 2", n)
	}
}
