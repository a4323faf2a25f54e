package services

import (
	"context"
	"fmt"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/db"
	"github.com/kimhsiao/purchaselog/backend/internal/export"
	"github.com/kimhsiao/purchaselog/backend/internal/location"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
	"github.com/kimhsiao/purchaselog/backend/internal/photo"
	"github.com/kimhsiao/purchaselog/backend/internal/storage"
)

// App bundles the services shared by the command line and desktop server.
type App struct {
	Config    config.Config
	DB        *db.DB
	Repo      *db.Repository
	Purchases *PurchaseService
	Importer  *photo.Importer
	Export    *export.Service
}

// NewApp opens the record store in cfg.DataDir and wires the export
// pipeline. Extra options are passed to the export service, after the
// locator and publisher derived from cfg.
func NewApp(cfg config.Config, opts ...export.Option) (*App, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newApp(cfg, database, opts...), nil
}

func newApp(cfg config.Config, database *db.DB, opts ...export.Option) *App {
	repo := db.NewRepository(database.DB)
	resolver := photo.NewFileResolver()
	importer := photo.NewImporter(cfg.PhotosDir, resolver)

	exportOpts := []export.Option{export.WithLocator(Locator(cfg.Location))}
	if pub := Publisher(cfg.ObjectStore); pub != nil {
		exportOpts = append(exportOpts, export.WithPublisher(pub))
	}
	exportOpts = append(exportOpts, opts...)

	return &App{
		Config:    cfg,
		DB:        database,
		Repo:      repo,
		Purchases: NewPurchaseService(repo, importer),
		Importer:  importer,
		Export:    export.NewService(repo, resolver, export.SettingsFrom(cfg), exportOpts...),
	}
}

// Close releases the record store.
func (a *App) Close() error {
	return a.DB.Close()
}

// Locator returns the configured position source. Without a configured fix
// it reports no position, so exports note the location as unavailable.
func Locator(cfg config.Location) location.Locator {
	if !cfg.Enabled {
		return location.LocatorFunc(func(context.Context) (*location.Position, error) {
			return nil, nil
		})
	}
	return location.Freshest(location.StaticLocator{Position: location.Position{
		Latitude:       cfg.Latitude,
		Longitude:      cfg.Longitude,
		AccuracyMeters: cfg.AccuracyMeters,
		Provider:       cfg.Provider,
	}})
}

// Publisher connects to the configured object store, or returns nil when
// publishing is off or the store cannot be reached.
func Publisher(cfg config.ObjectStore) export.Publisher {
	if !cfg.Enabled() {
		return nil
	}
	store, err := storage.NewMinioStore(cfg)
	if err != nil {
		logging.Warn("Object store unavailable, archives stay local", map[string]interface{}{
			"endpoint": cfg.Endpoint,
			"error":    err.Error(),
		})
		return nil
	}
	return store
}
