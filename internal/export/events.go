package export

import "time"

// Event types reported to an Observer.
const (
	EventStarted   = "export.started"
	EventStage     = "export.stage"
	EventCompleted = "export.completed"
	EventFailed    = "export.failed"
)

// Stage is one step of an export job.
type Stage string

const (
	StageLoadRecords       Stage = "load_records"
	StageStagePhotos       Stage = "stage_photos"
	StageWriteManifest     Stage = "write_manifest"
	StageWriteLocationNote Stage = "write_location_note"
	StageAssembleArchive   Stage = "assemble_archive"
	StageDone              Stage = "done"
)

// Event describes a job transition.
type Event struct {
	Type   string        `json:"type"`
	JobID  string        `json:"job_id"`
	Stage  Stage         `json:"stage,omitempty"`
	Result *ExportResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
	Time   time.Time     `json:"time"`
}

// Observer receives job events. Calls are made synchronously from the job.
type Observer interface {
	OnExportEvent(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

// OnExportEvent calls f.
func (f ObserverFunc) OnExportEvent(e Event) { f(e) }
