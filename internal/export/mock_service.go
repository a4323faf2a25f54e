package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kimhsiao/purchaselog/backend/internal/models"
)

// MockService is a mock implementation of ServiceInterface for testing.
type MockService struct {
	mu            sync.Mutex
	shouldSucceed bool
	exportDelay   time.Duration
	callCount     int
	clearCount    int
	wipeCount     int
	history       []models.ExportArchive
	observer      Observer
}

// NewMockService creates a new mock export service.
func NewMockService() *MockService {
	return &MockService{shouldSucceed: true}
}

// Export performs a mock export, reporting the same events as a real job.
func (m *MockService) Export(ctx context.Context) (*ExportResult, error) {
	m.mu.Lock()
	m.callCount++
	ok := m.shouldSucceed
	delay := m.exportDelay
	obs := m.observer
	jobID := fmt.Sprintf("mock-%d", m.callCount)
	m.mu.Unlock()

	notify := func(e Event) {
		if obs != nil {
			e.JobID = jobID
			e.Time = time.Now()
			obs.OnExportEvent(e)
		}
	}
	notify(Event{Type: EventStarted})

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		err := fmt.Errorf("mock export failed")
		notify(Event{Type: EventFailed, Error: err.Error()})
		return nil, err
	}

	result := &ExportResult{
		Handle:       "file:///tmp/inventory_export_mock.zip",
		ArchivePath:  "/tmp/inventory_export_mock.zip",
		ManifestName: "inventory_mock.csv",
		SizeBytes:    1024,
		RecordCount:  1,
		Checksum:     "mock-checksum-12345",
		Duration:     10 * time.Millisecond,
	}

	m.mu.Lock()
	m.history = append([]models.ExportArchive{{
		ID:          models.UUID(jobID),
		FilePath:    result.ArchivePath,
		Handle:      result.Handle,
		Checksum:    result.Checksum,
		SizeBytes:   result.SizeBytes,
		RecordCount: result.RecordCount,
		CreatedAt:   time.Now().UnixMilli(),
	}}, m.history...)
	m.mu.Unlock()

	notify(Event{Type: EventCompleted, Stage: StageDone, Result: result})
	return result, nil
}

// ClearCache reports a fixed cleanup.
func (m *MockService) ClearCache() (*CacheClearResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCount++
	if !m.shouldSucceed {
		return nil, fmt.Errorf("mock clear failed")
	}
	return &CacheClearResult{BytesFreed: 2048, EntriesRemoved: 2}, nil
}

// WipeAll reports a fixed wipe.
func (m *MockService) WipeAll(ctx context.Context) (*WipeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wipeCount++
	if !m.shouldSucceed {
		return nil, fmt.Errorf("mock wipe failed")
	}
	return &WipeResult{RecordsDeleted: 3, PhotosDeleted: 2}, nil
}

// History returns the mock exports run so far, newest first.
func (m *MockService) History(ctx context.Context, limit int) ([]models.ExportArchive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.history
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]models.ExportArchive(nil), out...), nil
}

// SetObserver sets the receiver of mock job events.
func (m *MockService) SetObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

// SetShouldSucceed controls whether mock operations succeed.
func (m *MockService) SetShouldSucceed(shouldSucceed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldSucceed = shouldSucceed
}

// SetExportDelay sets a delay for export operations.
func (m *MockService) SetExportDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportDelay = delay
}

// GetCallCount returns the number of times Export was called.
func (m *MockService) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// GetClearCount returns the number of times ClearCache was called.
func (m *MockService) GetClearCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCount
}

// GetWipeCount returns the number of times WipeAll was called.
func (m *MockService) GetWipeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wipeCount
}

// Reset resets the mock state.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.clearCount = 0
	m.wipeCount = 0
	m.history = nil
}

var _ ServiceInterface = (*MockService)(nil)
