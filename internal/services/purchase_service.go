// Package services coordinates record keeping, photo import and exports for
// the command line and desktop front ends.
package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/kimhsiao/purchaselog/backend/internal/errors"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
	"github.com/kimhsiao/purchaselog/backend/internal/models"
	"github.com/kimhsiao/purchaselog/backend/internal/uuid"
)

// PurchaseStore is the record store used by PurchaseService.
type PurchaseStore interface {
	CreatePurchase(ctx context.Context, p *models.Purchase) error
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	ListPurchases(ctx context.Context) ([]models.Purchase, error)
	DeletePurchase(ctx context.Context, id string) error
	CountPurchases(ctx context.Context) (int, error)
}

// PhotoImporter copies a picked photo into app storage and returns its
// reference. Discard removes a copy made by Import.
type PhotoImporter interface {
	Import(ref string) (string, error)
	Discard(ref string) error
}

// NewPurchase is the input for PurchaseService.Add.
type NewPurchase struct {
	Description  string     `json:"description"`
	PriceCents   int64      `json:"price_cents"`
	Quantity     int        `json:"quantity"`
	PurchaseDate civil.Date `json:"purchase_date"`
	Notes        string     `json:"notes"`
	// Group overrides the active group for this record.
	Group string `json:"group,omitempty"`
	// Photos are source references copied into app storage on add.
	Photos []string `json:"photos,omitempty"`
}

// PurchaseService records purchases. It owns the active group label, which
// is copied into each record when it is created.
type PurchaseService struct {
	store    PurchaseStore
	importer PhotoImporter

	mu          sync.RWMutex
	activeGroup string
	today       func() civil.Date
}

// NewPurchaseService creates a new PurchaseService. importer may be nil, in
// which case photo references are stored as given.
func NewPurchaseService(store PurchaseStore, importer PhotoImporter) *PurchaseService {
	return &PurchaseService{
		store:    store,
		importer: importer,
		today:    func() civil.Date { return civil.DateOf(time.Now()) },
	}
}

// SetActiveGroup sets the label applied to records added from now on. An
// empty label ends grouping.
func (s *PurchaseService) SetActiveGroup(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeGroup = strings.TrimSpace(label)
}

// ActiveGroup returns the current group label.
func (s *PurchaseService) ActiveGroup() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeGroup
}

// Add imports the photos of in and stores a new record. A zero purchase
// date means today and a zero quantity means one.
func (s *PurchaseService) Add(ctx context.Context, in NewPurchase) (*models.Purchase, error) {
	p := &models.Purchase{
		ID:           models.UUID(uuid.New()),
		Description:  strings.TrimSpace(in.Description),
		PriceCents:   in.PriceCents,
		Quantity:     in.Quantity,
		PurchaseDate: in.PurchaseDate,
		Notes:        in.Notes,
		GroupName:    strings.TrimSpace(in.Group),
	}
	if p.Quantity == 0 {
		p.Quantity = 1
	}
	if p.PurchaseDate == (civil.Date{}) {
		p.PurchaseDate = s.today()
	}
	if p.GroupName == "" {
		p.GroupName = s.ActiveGroup()
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "invalid purchase", err)
	}

	var imported []string
	for _, src := range in.Photos {
		ref := src
		if s.importer != nil {
			copied, err := s.importer.Import(src)
			if err != nil {
				s.discard(imported)
				return nil, errors.Wrap(errors.ErrPhotoStage, fmt.Sprintf("failed to import photo %s", src), err)
			}
			imported = append(imported, copied)
			ref = copied
		}
		p.PhotoRefs = append(p.PhotoRefs, ref)
	}

	if err := s.store.CreatePurchase(ctx, p); err != nil {
		s.discard(imported)
		return nil, err
	}

	logging.Info("Purchase added", map[string]interface{}{
		"record_id": p.ID.String(),
		"group":     p.GroupName,
		"photos":    len(p.PhotoRefs),
	})
	return p, nil
}

// discard removes photos imported for a record that was not stored.
func (s *PurchaseService) discard(refs []string) {
	for _, ref := range refs {
		if err := s.importer.Discard(ref); err != nil {
			logging.Warn("Could not remove imported photo", map[string]interface{}{
				"photo_ref": ref,
				"error":     err.Error(),
			})
		}
	}
}

// Get returns one record.
func (s *PurchaseService) Get(ctx context.Context, id string) (*models.Purchase, error) {
	return s.store.GetPurchase(ctx, id)
}

// List returns every record, most recent first.
func (s *PurchaseService) List(ctx context.Context) ([]models.Purchase, error) {
	return s.store.ListPurchases(ctx)
}

// Count returns the number of records.
func (s *PurchaseService) Count(ctx context.Context) (int, error) {
	return s.store.CountPurchases(ctx)
}

// Delete removes one record. Its imported photos stay on disk until a wipe.
func (s *PurchaseService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePurchase(ctx, id); err != nil {
		return err
	}
	logging.Info("Purchase deleted", map[string]interface{}{"record_id": id})
	return nil
}

// ParseAmount converts a user-entered price such as "12.34", "$12.3" or
// "12" into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return 0, errors.New(errors.ErrInvalid, "price is required")
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !digits(whole) || (hasDot && (len(frac) == 0 || len(frac) > 2 || !digits(frac))) {
		return 0, errors.Newf(errors.ErrInvalid, "invalid price %q", s)
	}
	if len(frac) == 1 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrInvalid, "invalid price %q", s)
	}
	var cents int64
	if frac != "" {
		cents, _ = strconv.ParseInt(frac, 10, 64)
	}
	return units*100 + cents, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ParseDate accepts yyyy-MM-dd or MM/dd/yyyy.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	if t, err := time.Parse("01/02/2006", s); err == nil {
		return civil.DateOf(t), nil
	}
	return civil.Date{}, errors.Newf(errors.ErrInvalid, "invalid date %q, want yyyy-mm-dd or mm/dd/yyyy", s)
}
