package export

import (
	"context"

	"github.com/kimhsiao/purchaselog/backend/internal/models"
)

// ServiceInterface defines the contract for export services.
// This interface allows mocking in the command handlers.
type ServiceInterface interface {
	// Export runs one export job and returns its archive.
	Export(ctx context.Context) (*ExportResult, error)
	// ClearCache removes export artifacts from the cache directory.
	ClearCache() (*CacheClearResult, error)
	// WipeAll deletes every record and standalone photo copy.
	WipeAll(ctx context.Context) (*WipeResult, error)
	// History lists finished exports, newest first.
	History(ctx context.Context, limit int) ([]models.ExportArchive, error)
}

// Ensure *Service implements the interface at compile time.
var _ ServiceInterface = (*Service)(nil)
