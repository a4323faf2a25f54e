package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/kimhsiao/purchaselog/backend/internal/errors"
	"github.com/kimhsiao/purchaselog/backend/internal/models"
	"github.com/kimhsiao/purchaselog/backend/internal/uuid"
)

// Repository provides purchase record and export history operations.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// =====================================================
// Purchase Operations
// =====================================================

const purchaseColumns = `id, description, price_cents, quantity, purchase_date, created_at, notes, group_name, photo_refs`

// CreatePurchase validates and inserts a purchase. A missing id or creation
// time is assigned here; an id is never changed once stored.
func (r *Repository) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	if err := p.Validate(); err != nil {
		return errors.Wrap(errors.ErrValidation, "invalid purchase", err)
	}
	if p.ID == "" {
		p.ID = models.UUID(uuid.New())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}

	var group sql.NullString
	if p.HasGroup() {
		group = sql.NullString{String: p.GroupName, Valid: true}
	}

	query := `INSERT INTO purchases (` + purchaseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Description, p.PriceCents, p.Quantity,
		p.PurchaseDate.String(), p.CreatedAt.UnixMilli(), p.Notes, group,
		models.EncodePhotoRefs(p.PhotoRefs))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "insert purchase", err)
	}
	return nil
}

// GetPurchase retrieves a purchase by id.
func (r *Repository) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id)
	p, err := scanPurchase(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf(errors.ErrNotFound, "purchase %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "get purchase", err)
	}
	return p, nil
}

// ListPurchases returns every purchase, most recent purchase date first,
// then most recent creation. The slice is a snapshot and does not change
// when the table does.
func (r *Repository) ListPurchases(ctx context.Context) ([]models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases ORDER BY purchase_date DESC, created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "list purchases", err)
	}
	defer rows.Close()

	var purchases []models.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "scan purchase", err)
		}
		purchases = append(purchases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "list purchases", err)
	}
	return purchases, nil
}

// CountPurchases returns the number of stored purchases.
func (r *Repository) CountPurchases(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchases`).Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "count purchases", err)
	}
	return n, nil
}

// DeletePurchase removes one purchase.
func (r *Repository) DeletePurchase(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "delete purchase", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrNotFound, "purchase %s not found", id)
	}
	return nil
}

// DeleteAllPurchases removes every purchase and returns how many were deleted.
func (r *Repository) DeleteAllPurchases(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM purchases`)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "delete purchases", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "delete purchases", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPurchase(row rowScanner) (*models.Purchase, error) {
	var (
		p         models.Purchase
		date      string
		createdAt int64
		group     sql.NullString
		refs      string
	)
	err := row.Scan(&p.ID, &p.Description, &p.PriceCents, &p.Quantity, &date,
		&createdAt, &p.Notes, &group, &refs)
	if err != nil {
		return nil, err
	}

	p.PurchaseDate, err = civil.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("purchase %s has bad date %q: %w", p.ID, date, err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	if group.Valid {
		p.GroupName = group.String
	}
	p.PhotoRefs = models.DecodePhotoRefs(refs)
	return &p, nil
}

// =====================================================
// Export History Operations
// =====================================================

// RecordExportArchive stores the outcome of a finished export.
func (r *Repository) RecordExportArchive(ctx context.Context, a *models.ExportArchive) error {
	if a.ID == "" {
		a.ID = models.UUID(uuid.New())
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = r.now().UnixMilli()
	}

	query := `
	INSERT INTO export_archives (id, file_path, handle, checksum, size_bytes, record_count,
		photo_count, dropped_photos, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.FilePath, a.Handle, a.Checksum, a.SizeBytes,
		a.RecordCount, a.PhotoCount, a.DroppedPhotos, a.CreatedAt)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "record export archive", err)
	}
	return nil
}

// ListExportArchives returns recorded exports, newest first.
func (r *Repository) ListExportArchives(ctx context.Context, limit int) ([]models.ExportArchive, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
	SELECT id, file_path, handle, checksum, size_bytes, record_count, photo_count,
		dropped_photos, created_at
	FROM export_archives ORDER BY created_at DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "list export archives", err)
	}
	defer rows.Close()

	var archives []models.ExportArchive
	for rows.Next() {
		var a models.ExportArchive
		if err := rows.Scan(&a.ID, &a.FilePath, &a.Handle, &a.Checksum, &a.SizeBytes,
			&a.RecordCount, &a.PhotoCount, &a.DroppedPhotos, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "scan export archive", err)
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "list export archives", err)
	}
	return archives, nil
}
