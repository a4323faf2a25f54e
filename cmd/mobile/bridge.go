// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libpurchaselog.so (Android) / purchaselog.framework (iOS)
//
//	go build -buildmode=c-shared -o libpurchaselog.so ./cmd/mobile
//
// Every call returns JSON. On failure the result is empty and the error is
// available from GetLastError.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/errors"
	"github.com/kimhsiao/purchaselog/backend/internal/export"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
	"github.com/kimhsiao/purchaselog/backend/internal/services"
)

// bridge holds the state shared by the exported functions.
type bridge struct {
	mu  sync.RWMutex
	app *services.App

	lastErr   string
	lastEvent *export.Event
}

var core = &bridge{}

func (b *bridge) init(configPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.app != nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	app, err := services.NewApp(cfg, export.WithObserver(export.ObserverFunc(b.onEvent)))
	if err != nil {
		return err
	}
	b.app = app
	return nil
}

func (b *bridge) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.app != nil {
		b.app.Close()
		b.app = nil
	}
}

func (b *bridge) onEvent(e export.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastEvent = &e
}

// current returns the open app or an error before init.
func (b *bridge) current() (*services.App, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.app == nil {
		return nil, errors.New(errors.ErrInternal, "core not initialized")
	}
	return b.app, nil
}

func (b *bridge) setLastError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.lastErr = ""
		return
	}
	b.lastErr = err.Error()
}

func (b *bridge) lastError() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

// call runs fn against the open app and serializes its result.
func (b *bridge) call(fn func(ctx context.Context, app *services.App) (interface{}, error)) (string, error) {
	app, err := b.current()
	if err != nil {
		return "", err
	}
	v, err := fn(context.Background(), app)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize: %w", err)
	}
	return string(data), nil
}

// =====================================================
// Purchase Operations
// =====================================================

// purchaseInput is the JSON accepted by PurchaseAdd.
type purchaseInput struct {
	Description  string   `json:"description"`
	Price        string   `json:"price"`
	Quantity     int      `json:"quantity"`
	PurchaseDate string   `json:"purchase_date"`
	Notes        string   `json:"notes"`
	Group        string   `json:"group"`
	Photos       []string `json:"photos"`
}

func (b *bridge) addPurchase(body string) (string, error) {
	return b.call(func(ctx context.Context, app *services.App) (interface{}, error) {
		var in purchaseInput
		if err := json.Unmarshal([]byte(body), &in); err != nil {
			return nil, errors.Wrap(errors.ErrInvalid, "invalid purchase json", err)
		}
		cents, err := services.ParseAmount(in.Price)
		if err != nil {
			return nil, err
		}
		np := services.NewPurchase{
			Description: in.Description,
			PriceCents:  cents,
			Quantity:    in.Quantity,
			Notes:       in.Notes,
			Group:       in.Group,
			Photos:      in.Photos,
		}
		if in.PurchaseDate != "" {
			if np.PurchaseDate, err = services.ParseDate(in.PurchaseDate); err != nil {
				return nil, err
			}
		}
		return app.Purchases.Add(ctx, np)
	})
}

func (b *bridge) listPurchases() (string, error) {
	return b.call(func(ctx context.Context, app *services.App) (interface{}, error) {
		items, err := app.Purchases.List(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"items": items, "total": len(items)}, nil
	})
}

func (b *bridge) deletePurchase(id string) error {
	_, err := b.call(func(ctx context.Context, app *services.App) (interface{}, error) {
		return nil, app.Purchases.Delete(ctx, id)
	})
	return err
}

func (b *bridge) setActiveGroup(label string) (string, error) {
	return b.call(func(ctx context.Context, app *services.App) (interface{}, error) {
		app.Purchases.SetActiveGroup(label)
		return map[string]string{"group": app.Purchases.ActiveGroup()}, nil
	})
}

// =====================================================
// Export Operations
// =====================================================

func (b *bridge) exportArchive() (string, error) {
	return b.call(func(ctx context.Context, app *services.App) (interface{}, error) {
		return app.Export.Export(ctx)
	})
}

func (b *bridge) exportStatus() (string, error) {
	return b.call(func(ctx context.Context, app *services.App) (interface{}, error) {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if b.lastEvent == nil {
			return map[string]string{}, nil
		}
		return b.lastEvent, nil
	})
}

func (b *bridge) clearCache() (string, error) {
	return b.call(func(ctx context.Context, app *services.App) (interface{}, error) {
		return app.Export.ClearCache()
	})
}

func (b *bridge) wipeAll() (string, error) {
	return b.call(func(ctx context.Context, app *services.App) (interface{}, error) {
		return app.Export.WipeAll(ctx)
	})
}

func main() {
	// Main function is required for c-shared build mode
	// but is not actually executed when used as shared library
}
