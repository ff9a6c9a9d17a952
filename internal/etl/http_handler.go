package etl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aircover/claimpipe/internal/runlog"

	"github.com/google/uuid"
)

// Handler exposes the upload pipeline over HTTP:
//
//	POST /upload             multipart: file, table, cleaned (optional flag)
//	GET  /runs/{id}/log      SSE stream of run log lines
//	GET  /runs/{id}/status   cached run status
type Handler struct {
	service *Service
	runs    *runlog.Log
	status  StatusStore
}

// NewHTTPHandler wraps the upload service with HTTP endpoints.
func NewHTTPHandler(service *Service, runs *runlog.Log, status StatusStore) http.Handler {
	return &Handler{service: service, runs: runs, status: status}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/upload"):
		h.handleUpload(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/log"):
		h.handleLogStream(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/status"):
		h.handleStatus(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	table := strings.TrimSpace(r.FormValue("table"))
	if table == "" {
		http.Error(w, "table is required", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	req := UploadRequest{
		Table:        table,
		FileName:     header.Filename,
		Data:         data,
		ForceCleaned: r.FormValue("cleaned") == "true",
	}

	result, err := h.service.Upload(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleLogStream serves the run log as server-sent events: the backlog
// arrives immediately, live lines follow until the client disconnects.
func (h *Handler) handleLogStream(w http.ResponseWriter, r *http.Request) {
	runID, err := runIDFromPath(r.URL.Path, "/log")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The sink runs on appender goroutines; hand lines to this handler
	// through a channel so writes stay on one goroutine. A slow client
	// drops lines rather than stalling appends.
	lines := make(chan []string, 256)
	unsubscribe := h.runs.Subscribe(runID, func(batch []string) {
		select {
		case lines <- batch:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case batch := <-lines:
			for _, line := range batch {
				fmt.Fprintf(w, "data: %s\n\n", line)
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID, err := runIDFromPath(r.URL.Path, "/status")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.status == nil {
		http.Error(w, "status cache not configured", http.StatusNotFound)
		return
	}

	status, err := h.status.GetStatus(r.Context(), runID.String())
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"run_id": runID.String(),
		"status": status,
	})
}

func runIDFromPath(path, suffix string) (uuid.UUID, error) {
	trimmed := strings.TrimSuffix(path, suffix)
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return uuid.Nil, errors.New("run id missing from path")
	}
	runID, err := uuid.Parse(trimmed[idx+1:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id: %w", err)
	}
	return runID, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
