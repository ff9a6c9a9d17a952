package etl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aircover/claimpipe/internal/domain"
	"github.com/aircover/claimpipe/internal/runlog"
	"github.com/aircover/claimpipe/internal/stageproc"
	"github.com/aircover/claimpipe/internal/tables"

	"github.com/google/uuid"
)

var (
	// ErrMissingTable means no target table was supplied with the upload.
	ErrMissingTable = errors.New("table name is required")
	// ErrEmptyFile means the uploaded file had no content.
	ErrEmptyFile = errors.New("file is empty")
	// ErrCleanerUnavailable means the file needs cleaning but no cleaner
	// stage is configured and no header-match fallback applied.
	ErrCleanerUnavailable = errors.New("file requires cleaning but no cleaner is configured")
)

// StatusStore caches run status for quick polling. *status.Repo satisfies it.
type StatusStore interface {
	SetStatus(ctx context.Context, runID, status string) error
	GetStatus(ctx context.Context, runID string) (string, error)
}

// Archiver stores a copy of the raw upload. *archive.Store satisfies it.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
}

// Service drives one upload through the full pipeline:
// save -> clean -> transform -> staged warehouse load.
type Service struct {
	router      *tables.Router
	cleaner     stageproc.Processor
	transformer stageproc.Processor
	orch        *Orchestrator
	runs        *runlog.Log
	status      StatusStore
	archive     Archiver
	uploadDir   string
}

// NewService wires the upload pipeline. cleaner, status and archive may be
// nil (cleaning unavailable, no status cache, no archival).
func NewService(
	router *tables.Router,
	cleaner stageproc.Processor,
	transformer stageproc.Processor,
	orch *Orchestrator,
	runs *runlog.Log,
	status StatusStore,
	archive Archiver,
	uploadDir string,
) *Service {
	return &Service{
		router:      router,
		cleaner:     cleaner,
		transformer: transformer,
		orch:        orch,
		runs:        runs,
		status:      status,
		archive:     archive,
		uploadDir:   uploadDir,
	}
}

// UploadRequest describes one accepted upload.
type UploadRequest struct {
	Table        string
	FileName     string
	Data         []byte
	ForceCleaned bool
}

// UploadResult is the terminal outcome of a run.
type UploadResult struct {
	RunID      uuid.UUID           `json:"run_id"`
	Table      string              `json:"table"`
	Status     domain.RunStatus    `json:"status"`
	FailedStep string              `json:"failed_step,omitempty"`
	Steps      []domain.StepResult `json:"steps"`
}

// Upload validates the request, then runs the pipeline to completion. An
// error return is an input error with no side effects; pipeline failures
// after acceptance are reported through the result and the run log.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if strings.TrimSpace(req.Table) == "" {
		return UploadResult{}, ErrMissingTable
	}
	if len(req.Data) == 0 {
		return UploadResult{}, ErrEmptyFile
	}

	headers, _, err := parseTable(req.FileName, req.Data)
	if err != nil {
		return UploadResult{}, err
	}

	cfg := s.router.Resolve(req.Table)

	needsCleaning := !stageproc.LooksLikeCleaned(req.ForceCleaned, req.FileName, headers, cfg.ExpectedColumns)
	if needsCleaning && s.cleaner == nil {
		return UploadResult{}, ErrCleanerUnavailable
	}

	runID := uuid.New()
	result := UploadResult{RunID: runID, Table: cfg.Name, Status: domain.RunStatusRunning}

	s.runs.CreateRun(runID)
	logf := func(line string) { s.runs.Append(runID, line) }
	s.setStatus(ctx, runID, domain.RunStatusRunning)

	logf(fmt.Sprintf("run %s started for table %s (%s)", runID, cfg.Name, req.FileName))

	path, err := s.saveUpload(runID, req.FileName, req.Data)
	if err != nil {
		return s.fail(ctx, result, "save", err, logf), nil
	}
	logf(fmt.Sprintf("saved upload to %s", path))

	s.archiveUpload(ctx, req, logf)

	if needsCleaning {
		cleaned, err := s.cleaner.Run(ctx, stageproc.Input{Table: cfg.Name, Path: path}, logf)
		if err != nil {
			return s.fail(ctx, result, "clean", err, logf), nil
		}
		path = cleaned
	} else {
		logf("file looks cleaned, skipping cleaning stage")
	}

	transformed, err := s.transformer.Run(ctx, stageproc.Input{Table: cfg.Name, Path: path}, logf)
	if err != nil {
		return s.fail(ctx, result, "transform", err, logf), nil
	}

	payload, err := os.ReadFile(transformed)
	if err != nil {
		return s.fail(ctx, result, "transform", fmt.Errorf("failed to read transform output: %w", err), logf), nil
	}
	_, rows, err := parseCSV(payload)
	if err != nil {
		return s.fail(ctx, result, "transform", err, logf), nil
	}
	logf(fmt.Sprintf("parsed %d load-ready rows", len(rows)))

	result.Steps = s.orch.Run(ctx, cfg, rows, logf)

	if last := len(result.Steps) - 1; last >= 0 && result.Steps[last].Failed() {
		result.Status = domain.RunStatusFailed
		result.FailedStep = string(result.Steps[last].Step)
		logf(fmt.Sprintf("run failed at step %s", result.FailedStep))
	} else {
		result.Status = domain.RunStatusSuccess
		logf("run completed successfully")
	}

	s.setStatus(ctx, runID, result.Status)
	return result, nil
}

func (s *Service) fail(ctx context.Context, result UploadResult, step string, err error, logf func(string)) UploadResult {
	logf(fmt.Sprintf("run failed at step %s: %v", step, err))
	result.Status = domain.RunStatusFailed
	result.FailedStep = step
	s.setStatus(ctx, result.RunID, domain.RunStatusFailed)
	return result
}

func (s *Service) saveUpload(runID uuid.UUID, fileName string, data []byte) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", runID, filepath.Base(fileName)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

func (s *Service) archiveUpload(ctx context.Context, req UploadRequest, logf func(string)) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Archive(ctx, req.FileName, req.Data); err != nil {
		// Archival is best effort, the on-disk copy is authoritative.
		logf(fmt.Sprintf("archive failed (non-fatal): %v", err))
	}
}

func (s *Service) setStatus(ctx context.Context, runID uuid.UUID, status domain.RunStatus) {
	if s.status == nil {
		return
	}
	if err := s.status.SetStatus(ctx, runID.String(), string(status)); err != nil {
		log.Printf("[ETL] failed to cache run status: %v", err)
	}
}
