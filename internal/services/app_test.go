package services

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/db"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.CacheDir = filepath.Join(root, "cache")
	cfg.PhotosDir = filepath.Join(root, "photos")
	return cfg
}

// TestNewApp verifies the app opens its store under the data directory.
func TestNewApp(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if _, err := os.Stat(filepath.Join(cfg.DataDir, db.FileName)); err != nil {
		t.Errorf("database file missing: %v", err)
	}
	if app.Purchases == nil || app.Export == nil || app.Importer == nil {
		t.Error("NewApp() left services unset")
	}
}

// TestApp_addAndExport verifies a photo added through the app reaches the archive.
func TestApp_addAndExport(t *testing.T) {
	cfg := testConfig(t)
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	app := newApp(cfg, database)
	defer app.Close()
	ctx := context.Background()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "picked.jpg")
	if err := os.WriteFile(src, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	app.Purchases.SetActiveGroup("Shed")
	p, err := app.Purchases.Add(ctx, NewPurchase{Description: "Rake", PriceCents: 1500, Photos: []string{src}})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !strings.HasPrefix(p.PhotoRefs[0], "file://") {
		t.Errorf("PhotoRefs[0] = %s, want imported file URI", p.PhotoRefs[0])
	}

	result, err := app.Export.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.RecordCount != 1 || result.PhotoCount != 1 || result.DroppedPhotos != 0 || result.LocationAvailable {
		t.Errorf("Export() = %+v", result)
	}

	history, err := app.Export.History(ctx, 5)
	if err != nil || len(history) != 1 {
		t.Errorf("History() = %v, %v", history, err)
	}

	wiped, err := app.Export.WipeAll(ctx)
	if err != nil {
		t.Fatalf("WipeAll() error = %v", err)
	}
	if wiped.RecordsDeleted != 1 || wiped.PhotosDeleted != 1 {
		t.Errorf("WipeAll() = %+v", wiped)
	}
}

// TestApp_addLeavesNoOrphanPhotos verifies a failed add keeps the photo
// directory empty.
func TestApp_addLeavesNoOrphanPhotos(t *testing.T) {
	cfg := testConfig(t)
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	app := newApp(cfg, database)
	defer app.Close()
	ctx := context.Background()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jpg")
	if err := os.WriteFile(good, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = app.Purchases.Add(ctx, NewPurchase{
		Description: "Drill",
		PriceCents:  4500,
		Photos:      []string{good, filepath.Join(dir, "missing.jpg")},
	})
	if err == nil {
		t.Fatal("Add() with a missing photo should fail")
	}
	if n, _ := app.Purchases.Count(ctx); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
	entries, _ := os.ReadDir(cfg.PhotosDir)
	if len(entries) != 0 {
		t.Errorf("photos directory holds %d files, want 0", len(entries))
	}
}

// TestLocator verifies the configured fix is reported only when enabled.
func TestLocator(t *testing.T) {
	pos, err := Locator(config.Location{}).Locate(context.Background())
	if err != nil || pos != nil {
		t.Errorf("disabled Locate() = %v, %v", pos, err)
	}

	pos, err = Locator(config.Location{Enabled: true, Latitude: 1, Longitude: 2, Provider: "config"}).Locate(context.Background())
	if err != nil || pos == nil || pos.Latitude != 1 || pos.Provider != "config" {
		t.Errorf("enabled Locate() = %+v, %v", pos, err)
	}
}

// TestPublisher_disabled verifies no publisher without an endpoint.
func TestPublisher_disabled(t *testing.T) {
	if p := Publisher(config.ObjectStore{}); p != nil {
		t.Errorf("Publisher() = %v, want nil", p)
	}
}
