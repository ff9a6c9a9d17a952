package etl

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aircover/claimpipe/internal/runlog"

	"github.com/google/uuid"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	runs := runlog.New("", nil)
	t.Cleanup(runs.Close)
	return NewHTTPHandler(newTestService(t, newFakeWarehouse(), nil, nil), runs, nil)
}

func TestHandlerRouting(t *testing.T) {
	handler := newTestHandler(t)
	runID := uuid.New()

	cases := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"post to log path is not an upload", http.MethodPost, "/runs/" + runID.String() + "/log", http.StatusNotFound},
		{"post to status path is not an upload", http.MethodPost, "/runs/" + runID.String() + "/status", http.StatusNotFound},
		{"get upload", http.MethodGet, "/upload", http.StatusNotFound},
		{"upload without form", http.MethodPost, "/upload", http.StatusBadRequest},
		{"log with bad run id", http.MethodGet, "/runs/not-a-uuid/log", http.StatusBadRequest},
		{"status without cache", http.MethodGet, "/runs/" + runID.String() + "/status", http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(""))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("%s %s: expected status %d, got %d (%s)",
					tc.method, tc.path, tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}
