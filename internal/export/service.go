// Package export assembles purchase records and their photos into shareable
// zip archives.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/errors"
	"github.com/kimhsiao/purchaselog/backend/internal/location"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
	"github.com/kimhsiao/purchaselog/backend/internal/media"
	"github.com/kimhsiao/purchaselog/backend/internal/models"
	"github.com/kimhsiao/purchaselog/backend/internal/photo"
	"github.com/kimhsiao/purchaselog/backend/internal/uuid"
)

// LocationNoteName is the file holding the device position in every export.
const LocationNoteName = "location.txt"

// maxWorkDirAttempts bounds the search for a free working directory name.
const maxWorkDirAttempts = 1000

// RecordStore is the slice of the purchase repository used by exports.
type RecordStore interface {
	ListPurchases(ctx context.Context) ([]models.Purchase, error)
	DeleteAllPurchases(ctx context.Context) (int, error)
	RecordExportArchive(ctx context.Context, a *models.ExportArchive) error
	ListExportArchives(ctx context.Context, limit int) ([]models.ExportArchive, error)
}

// Publisher turns a local archive into a shareable link.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// Settings holds the directories and tunables used by the Service.
type Settings struct {
	CacheDir        string
	PhotosDir       string
	Compression     media.Options
	CacheRules      []config.CacheRule
	Wipe            config.Wipe
	LocationTimeout time.Duration
}

// SettingsFrom derives Settings from the application config.
func SettingsFrom(c config.Config) Settings {
	timeout := time.Duration(c.Location.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return Settings{
		CacheDir:  c.CacheDir,
		PhotosDir: c.PhotosDir,
		Compression: media.Options{
			TargetBytes:      c.Compression.TargetBytes,
			MinQuality:       c.Compression.MinQuality,
			MaxQuality:       c.Compression.MaxQuality,
			MinLongestSidePx: c.Compression.MinLongestSidePx,
			MaxLongestSidePx: c.Compression.MaxLongestSidePx,
			DownscaleStep:    c.Compression.DownscaleStep,
		},
		CacheRules:      c.CacheRules,
		Wipe:            c.Wipe,
		LocationTimeout: timeout,
	}
}

// ExportResult contains the outcome of an export job.
type ExportResult struct {
	Handle            string        `json:"handle"`
	ArchivePath       string        `json:"archive_path"`
	ManifestName      string        `json:"manifest_name"`
	SizeBytes         int64         `json:"size_bytes"`
	RecordCount       int           `json:"record_count"`
	PhotoCount        int           `json:"photo_count"`
	DroppedPhotos     int           `json:"dropped_photos"`
	LocationAvailable bool          `json:"location_available"`
	Checksum          string        `json:"checksum"` // SHA-256
	Duration          time.Duration `json:"duration"`
}

// Service runs export jobs and the cache maintenance around them.
type Service struct {
	store     RecordStore
	resolver  photo.Resolver
	namer     *photo.Namer
	settings  Settings
	locator   location.Locator
	publisher Publisher
	observer  Observer
	now       func() time.Time

	// mu guards active, the cache entry names owned by running jobs.
	mu     sync.Mutex
	active map[string]struct{}
}

// Option customizes a Service.
type Option func(*Service)

// WithLocator sets the position source for location.txt.
func WithLocator(l location.Locator) Option {
	return func(s *Service) { s.locator = l }
}

// WithPublisher uploads finished archives and uses the returned link as the handle.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithObserver receives job events.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a new export service.
func NewService(store RecordStore, resolver photo.Resolver, settings Settings, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		namer:    photo.NewNamer(resolver),
		settings: settings,
		now:      time.Now,
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// job carries the state of one export run.
type job struct {
	id          string
	ts          int64
	workDir     string
	stageDir    string
	archivePath string
}

// Export snapshots all records, writes their photos, the manifest and the
// location note into a fresh working directory and zips it. Failing photos
// are left out of the manifest and counted in DroppedPhotos; any other
// failure aborts the job.
func (s *Service) Export(ctx context.Context) (*ExportResult, error) {
	start := s.now()
	j := &job{ts: start.UnixMilli()}
	j.id = strconv.FormatInt(j.ts, 10)
	s.emit(Event{Type: EventStarted, JobID: j.id})

	s.stage(j, StageLoadRecords)
	records, err := s.store.ListPurchases(ctx)
	if err != nil {
		return nil, s.fail(j, errors.Wrap(errors.ErrExportFailed, "failed to load records", err))
	}

	if err := s.createWorkDir(j); err != nil {
		return nil, s.fail(j, err)
	}
	defer os.RemoveAll(j.stageDir)
	defer s.release(j)

	s.stage(j, StageStagePhotos)
	names, photoCount, dropped, err := s.stagePhotos(j, records)
	if err != nil {
		return nil, s.fail(j, err)
	}

	s.stage(j, StageWriteManifest)
	manifestName := fmt.Sprintf("inventory_%d.csv", j.ts)
	err = WriteManifest(filepath.Join(j.workDir, manifestName), records, func(p models.Purchase) string {
		return strings.Join(names[p.ID], ";")
	})
	if err != nil {
		return nil, s.fail(j, errors.Wrap(errors.ErrManifest, "failed to write manifest", err))
	}

	s.stage(j, StageWriteLocationNote)
	located, err := location.WriteNote(ctx, filepath.Join(j.workDir, LocationNoteName), s.locator, s.settings.LocationTimeout)
	if err != nil {
		return nil, s.fail(j, errors.Wrap(errors.ErrWorkdirFailed, "failed to write location note", err))
	}

	s.stage(j, StageAssembleArchive)
	archivePath := j.archivePath
	if _, err := ZipDirectory(j.workDir, archivePath); err != nil {
		os.Remove(archivePath)
		return nil, s.fail(j, errors.Wrap(errors.ErrArchive, "failed to assemble archive", err))
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, s.fail(j, errors.Wrap(errors.ErrArchive, "failed to stat archive", err))
	}
	checksum, err := fileChecksum(archivePath)
	if err != nil {
		return nil, s.fail(j, errors.Wrap(errors.ErrArchive, "failed to checksum archive", err))
	}

	result := &ExportResult{
		Handle:            s.handleFor(ctx, archivePath),
		ArchivePath:       archivePath,
		ManifestName:      manifestName,
		SizeBytes:         info.Size(),
		RecordCount:       len(records),
		PhotoCount:        photoCount,
		DroppedPhotos:     dropped,
		LocationAvailable: located,
		Checksum:          checksum,
		Duration:          s.now().Sub(start),
	}
	s.recordHistory(ctx, result, j.ts)

	logging.Info("Export completed", map[string]interface{}{
		"job_id":         j.id,
		"archive":        archivePath,
		"size_bytes":     result.SizeBytes,
		"records":        result.RecordCount,
		"photos":         result.PhotoCount,
		"dropped_photos": result.DroppedPhotos,
		"duration_ms":    result.Duration.Milliseconds(),
	})
	s.emit(Event{Type: EventCompleted, JobID: j.id, Stage: StageDone, Result: result})
	return result, nil
}

// createWorkDir claims export_<ts> in the cache directory. When another job
// already owns that name the timestamp is bumped until a free one is found.
// The job's cache entries stay out of ClearCache's reach until release.
func (s *Service) createWorkDir(j *job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.settings.CacheDir, 0755); err != nil {
		return errors.Wrap(errors.ErrWorkdirFailed, "failed to create cache directory", err)
	}

	for attempt := 0; ; attempt++ {
		dir := filepath.Join(s.settings.CacheDir, fmt.Sprintf("export_%d", j.ts))
		err := os.Mkdir(dir, 0755)
		if err == nil {
			j.workDir = dir
			break
		}
		if !os.IsExist(err) || attempt >= maxWorkDirAttempts {
			return errors.Wrap(errors.ErrWorkdirFailed, "failed to create working directory", err)
		}
		j.ts++
	}
	j.id = strconv.FormatInt(j.ts, 10)

	if err := os.Mkdir(filepath.Join(j.workDir, photo.PhotosDir), 0755); err != nil {
		return errors.Wrap(errors.ErrWorkdirFailed, "failed to create photos directory", err)
	}
	j.stageDir = filepath.Join(s.settings.CacheDir, fmt.Sprintf("img_stage_%d", j.ts))
	if err := os.MkdirAll(j.stageDir, 0755); err != nil {
		return errors.Wrap(errors.ErrWorkdirFailed, "failed to create staging directory", err)
	}
	j.archivePath = filepath.Join(s.settings.CacheDir, fmt.Sprintf("inventory_export_%d.zip", j.ts))

	for _, p := range j.entries() {
		s.active[filepath.Base(p)] = struct{}{}
	}
	return nil
}

func (j *job) entries() []string {
	return []string{j.workDir, j.stageDir, j.archivePath}
}

// release hands the job's cache entries back to ClearCache.
func (s *Service) release(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range j.entries() {
		delete(s.active, filepath.Base(p))
	}
}

// stagePhotos writes every record's photos one at a time and returns the
// exported names per record, relative to photos/. Names are resolved
// against the files already placed, so the loop must stay sequential.
func (s *Service) stagePhotos(j *job, records []models.Purchase) (map[models.UUID][]string, int, int, error) {
	names := make(map[models.UUID][]string, len(records))
	placed, dropped := 0, 0

	for _, rec := range records {
		if len(rec.PhotoRefs) == 0 {
			continue
		}
		folder := photo.TargetFolder(rec.GroupName)
		dir := filepath.Join(j.workDir, filepath.FromSlash(folder))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, 0, 0, errors.Wrap(errors.ErrWorkdirFailed, "failed to create group folder", err)
		}

		for idx, ref := range rec.PhotoRefs {
			name, err := s.stagePhoto(j, rec, ref, idx, dir)
			if errors.IsFatal(err) {
				return nil, 0, 0, err
			}
			if err != nil {
				dropped++
				logging.Warn("Photo left out of export", map[string]interface{}{
					"job_id":    j.id,
					"record_id": rec.ID.String(),
					"photo_ref": ref,
					"code":      string(errors.CodeOf(err)),
					"error":     err.Error(),
				})
				continue
			}
			if rec.HasGroup() {
				name = photo.SanitizeGroup(rec.GroupName) + "/" + name
			}
			names[rec.ID] = append(names[rec.ID], name)
			placed++
		}
	}
	return names, placed, dropped, nil
}

// stagePhoto copies one photo into the staging directory under its final
// name, recompresses it into dir and returns the written file name.
func (s *Service) stagePhoto(j *job, rec models.Purchase, ref string, index int, dir string) (string, error) {
	name := photo.EnsureUnique(dir, s.namer.NameFor(ref, rec.ID.String(), index))
	staged := filepath.Join(j.stageDir, name)
	defer os.Remove(staged)

	if err := s.copyRef(ref, staged); err != nil {
		return "", errors.Wrap(errors.ErrPhotoStage, "failed to stage photo", err)
	}

	res, err := media.Compress(staged, dir, s.settings.Compression)
	if err != nil {
		return "", errors.Wrap(errors.ErrPhotoCompress, "failed to compress photo", err)
	}
	return filepath.Base(res.Path), nil
}

func (s *Service) copyRef(ref, dest string) error {
	src, err := s.resolver.Open(ref)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// handleFor returns the shareable locator for an archive. A failed publish
// falls back to the local file URI.
func (s *Service) handleFor(ctx context.Context, archivePath string) string {
	local := photo.FileURI(archivePath)
	if s.publisher == nil {
		return local
	}
	url, err := s.publisher.Publish(ctx, archivePath)
	if err != nil {
		logging.Warn("Archive publish failed, sharing local file", map[string]interface{}{
			"archive": archivePath,
			"code":    string(errors.ErrPublishFailed),
			"error":   err.Error(),
		})
		return local
	}
	return url
}

func (s *Service) recordHistory(ctx context.Context, r *ExportResult, ts int64) {
	entry := &models.ExportArchive{
		ID:            models.UUID(uuid.New()),
		FilePath:      r.ArchivePath,
		Handle:        r.Handle,
		Checksum:      r.Checksum,
		SizeBytes:     r.SizeBytes,
		RecordCount:   r.RecordCount,
		PhotoCount:    r.PhotoCount,
		DroppedPhotos: r.DroppedPhotos,
		CreatedAt:     ts,
	}
	if err := s.store.RecordExportArchive(ctx, entry); err != nil {
		logging.Warn("Failed to record export history", map[string]interface{}{
			"archive": r.ArchivePath,
			"error":   err.Error(),
		})
	}
}

// History returns the most recent export archives, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.ExportArchive, error) {
	return s.store.ListExportArchives(ctx, limit)
}

func (s *Service) stage(j *job, st Stage) {
	logging.Debug("Export stage", map[string]interface{}{"job_id": j.id, "stage": string(st)})
	s.emit(Event{Type: EventStage, JobID: j.id, Stage: st})
}

func (s *Service) fail(j *job, err error) error {
	logging.Error("Export failed", err, map[string]interface{}{"job_id": j.id})
	s.emit(Event{Type: EventFailed, JobID: j.id, Error: err.Error()})
	return err
}

func (s *Service) emit(e Event) {
	if s.observer == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	s.observer.OnExportEvent(e)
}
