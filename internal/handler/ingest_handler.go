// Package handler contains HTTP request handlers for the core's
// device-facing surface: position ingest.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/shiva/orbit/internal/collision"
)

// IngestPositionBody is the JSON body for POST /v1/users/{user_id}/position.
type IngestPositionBody struct {
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	AccuracyM     float64 `json:"accuracy_m"`
	DeviceInstant string  `json:"device_instant"` // RFC3339
}

// PositionHandler handles position-update ingest.
type PositionHandler struct {
	detector *collision.Detector
}

// NewPositionHandler creates a handler wired to CollisionDetector.
func NewPositionHandler(detector *collision.Detector) *PositionHandler {
	return &PositionHandler{detector: detector}
}

// Ingest handles POST /v1/users/{user_id}/position — the entry point that
// frontends call concurrently as users move (SPEC_FULL.md §5).
func (h *PositionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseInt(vars["user_id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id: must be an integer"})
		return
	}

	var body IngestPositionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	deviceInstant := time.Now()
	if body.DeviceInstant != "" {
		parsed, err := time.Parse(time.RFC3339, body.DeviceInstant)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "device_instant must be RFC3339"})
			return
		}
		deviceInstant = parsed
	}

	result, err := h.detector.Ingest(r.Context(), userID, body.Lat, body.Lon, body.AccuracyM, deviceInstant)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ingest failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"skipped":    result.Skipped,
		"collisions": result.Collisions,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
