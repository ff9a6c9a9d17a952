package eligibility

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aircover/claimpipe/internal/domain"
)

// Handler exposes eligibility checks over HTTP:
//
//	POST /eligibility/check   JSON payload, answered with the sync verdict
//	GET  /eligibility/wait    blocks until a matching verdict is recorded
type Handler struct {
	service  *Service
	notifier *Notifier
}

// NewHTTPHandler wraps the check service and notifier with HTTP endpoints.
func NewHTTPHandler(service *Service, notifier *Notifier) http.Handler {
	return &Handler{service: service, notifier: notifier}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/check"):
		h.handleCheck(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/wait"):
		h.handleWait(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var payload domain.EligibilityPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.Check(r.Context(), payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleWait(w http.ResponseWriter, r *http.Request) {
	if h.notifier == nil {
		http.Error(w, "verdict notifications not configured", http.StatusNotFound)
		return
	}

	passengerID := strings.TrimSpace(r.URL.Query().Get("passenger_id"))
	if passengerID == "" {
		http.Error(w, "passenger_id is required", http.StatusBadRequest)
		return
	}
	flightNumber := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("flight_number")))

	result, err := h.notifier.Wait(r.Context(), passengerID, flightNumber)
	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
