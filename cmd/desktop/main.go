// Package main provides the local HTTP server for desktop platforms.
// Desktop clients communicate via REST/WebSocket on localhost:8090.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kimhsiao/purchaselog/backend/cmd/desktop/handlers"
	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/export"
	"github.com/kimhsiao/purchaselog/backend/internal/export/scheduler"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
	"github.com/kimhsiao/purchaselog/backend/internal/services"
)

func main() {
	configPath := flag.String("config", os.Getenv("PURCHASELOG_CONFIG"), "Path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	hub := NewWSHub()
	app, err := services.NewApp(cfg, export.WithObserver(hub))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(app.Export, scheduler.ConfigFrom(cfg))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	exportHandler := handlers.NewExportHandler(&notifyingService{ServiceInterface: app.Export, hub: hub})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newMux(app.Purchases, exportHandler, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Purchase log desktop server starting", map[string]interface{}{"addr": cfg.ListenAddr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logging.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	exportHandler.Wait()
	return nil
}

// newMux registers every route of the desktop API.
func newMux(purchases handlers.PurchaseService, exportHandler *handlers.ExportHandler, hub *WSHub) *http.ServeMux {
	purchaseHandler := handlers.NewPurchaseHandler(purchases)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", healthCheck(hub))
	mux.HandleFunc("/api/purchases", purchaseHandler.Purchases)
	mux.HandleFunc("/api/purchases/{id}", purchaseHandler.Purchase)
	mux.HandleFunc("/api/group", purchaseHandler.Group)
	mux.HandleFunc("/api/export", exportHandler.Export)
	mux.HandleFunc("/api/export/history", exportHandler.History)
	mux.HandleFunc("/api/cache/clear", exportHandler.ClearCache)
	mux.HandleFunc("/api/wipe", exportHandler.Wipe)
	mux.HandleFunc("/ws", HandleWebSocket(hub))
	return mux
}

// healthCheck reports liveness and the number of WebSocket clients.
func healthCheck(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"purchaselog-desktop","clients":%d}`, hub.ClientCount())
	}
}

// notifyingService reports maintenance results to WebSocket clients.
// Export jobs report through the hub as the service observer.
type notifyingService struct {
	export.ServiceInterface
	hub *WSHub
}

func (s *notifyingService) ClearCache() (*export.CacheClearResult, error) {
	result, err := s.ServiceInterface.ClearCache()
	if err == nil {
		s.hub.BroadcastCacheCleared(result)
	}
	return result, err
}

func (s *notifyingService) WipeAll(ctx context.Context) (*export.WipeResult, error) {
	result, err := s.ServiceInterface.WipeAll(ctx)
	if err == nil {
		s.hub.BroadcastWiped(result)
	}
	return result, err
}
