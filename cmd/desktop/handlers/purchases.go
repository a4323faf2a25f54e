package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kimhsiao/purchaselog/backend/internal/models"
	"github.com/kimhsiao/purchaselog/backend/internal/services"
)

// PurchaseService is the part of services.PurchaseService the handlers use.
type PurchaseService interface {
	Add(ctx context.Context, in services.NewPurchase) (*models.Purchase, error)
	Get(ctx context.Context, id string) (*models.Purchase, error)
	List(ctx context.Context) ([]models.Purchase, error)
	Delete(ctx context.Context, id string) error
	SetActiveGroup(label string)
	ActiveGroup() string
}

// PurchaseHandler handles purchase records and the active group.
type PurchaseHandler struct {
	purchases PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchases PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

// CreatePurchaseRequest is the body of POST /api/purchases. Price is a
// decimal string such as "12.34"; PriceCents is used when Price is empty.
type CreatePurchaseRequest struct {
	Description  string   `json:"description"`
	Price        string   `json:"price"`
	PriceCents   int64    `json:"price_cents"`
	Quantity     int      `json:"quantity"`
	PurchaseDate string   `json:"purchase_date"`
	Notes        string   `json:"notes"`
	Group        string   `json:"group"`
	Photos       []string `json:"photos"`
}

// GroupRequest is the body of PUT /api/group.
type GroupRequest struct {
	Group string `json:"group"`
}

// Purchases handles GET and POST /api/purchases
func (h *PurchaseHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Purchase handles GET and DELETE /api/purchases/{id}
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		badRequest(w, "id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := h.purchases.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := h.purchases.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Group handles GET and PUT /api/group
func (h *PurchaseHandler) Group(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req GroupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid request body: "+err.Error())
			return
		}
		h.purchases.SetActiveGroup(req.Group)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, GroupRequest{Group: h.purchases.ActiveGroup()})
}

func (h *PurchaseHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.purchases.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.Purchase{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

func (h *PurchaseHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	in := services.NewPurchase{
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Quantity:    req.Quantity,
		Notes:       req.Notes,
		Group:       req.Group,
		Photos:      req.Photos,
	}
	if req.Price != "" {
		cents, err := services.ParseAmount(req.Price)
		if err != nil {
			writeError(w, err)
			return
		}
		in.PriceCents = cents
	}
	if req.PurchaseDate != "" {
		d, err := services.ParseDate(req.PurchaseDate)
		if err != nil {
			writeError(w, err)
			return
		}
		in.PurchaseDate = d
	}

	p, err := h.purchases.Add(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
