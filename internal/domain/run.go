package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal state of an upload run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// UploadRun identifies one upload-triggered pipeline execution.
type UploadRun struct {
	ID         uuid.UUID `json:"id"`
	Table      string    `json:"table"`
	SourceFile string    `json:"source_file"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
}

// RunLogEntry is one persisted line of a run's event log.
type RunLogEntry struct {
	RunID     uuid.UUID `json:"run_id"`
	EventTime time.Time `json:"event_time"`
	Message   string    `json:"message"`
}
