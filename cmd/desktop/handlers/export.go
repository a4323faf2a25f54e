package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/kimhsiao/purchaselog/backend/internal/export"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
	"github.com/kimhsiao/purchaselog/backend/internal/models"
)

// ExportHandler handles export jobs and cache maintenance.
type ExportHandler struct {
	export export.ServiceInterface

	// background jobs started with ?async=true
	wg sync.WaitGroup
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(service export.ServiceInterface) *ExportHandler {
	return &ExportHandler{export: service}
}

// WipeRequest is the body of POST /api/wipe.
type WipeRequest struct {
	Confirm bool `json:"confirm"`
}

// Export handles POST /api/export
// With ?async=true the job runs in the background and progress is only
// reported through the event stream.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if _, err := h.export.Export(context.Background()); err != nil {
				logging.Error("Background export failed", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}

	result, err := h.export.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Wait blocks until background exports have finished.
func (h *ExportHandler) Wait() {
	h.wg.Wait()
}

// History handles GET /api/export/history
func (h *ExportHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	archives, err := h.export.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if archives == nil {
		archives = []models.ExportArchive{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": archives,
		"total": len(archives),
	})
}

// ClearCache handles POST /api/cache/clear
func (h *ExportHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.export.ClearCache()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Wipe handles POST /api/wipe
// The body must carry {"confirm": true}.
func (h *ExportHandler) Wipe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req WipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if !req.Confirm {
		badRequest(w, "confirm must be true")
		return
	}

	result, err := h.export.WipeAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
