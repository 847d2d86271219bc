package api

import (
    "net/http"
    "strconv"
    "strings"
    "time"

    "fieldcrm/internal/model"
)

type geocodeResultRequest struct {
    JobID             string         `json:"jobId"`
    Latitude          *float64       `json:"latitude"`
    Longitude         *float64       `json:"longitude"`
    Accuracy          *string        `json:"accuracy,omitempty"`
    NormalizedAddress *string        `json:"normalizedAddress,omitempty"`
    Metadata          model.Metadata `json:"metadata,omitempty"`
}

type geocodeFailureRequest struct {
    JobID        string         `json:"jobId"`
    ErrorMessage string         `json:"errorMessage"`
    Metadata     model.Metadata `json:"metadata,omitempty"`
}

type bulkGeocodeRequest struct {
    BatchSize int    `json:"batchSize"`
    DelayMs   *int64 `json:"delayMs"`
}

// GeocodeJobsHandler handles GET /v1/geocode/jobs and POST /v1/geocode/jobs/claim.
// Both hand out the next pending jobs; claiming does not lease them.
func (s *Server) GeocodeJobsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.URL.Path {
    case "/v1/geocode/jobs":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    case "/v1/geocode/jobs/claim":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if !s.requireGeocodeWorker(w, r) { return }
    limit := 0
    if v := r.URL.Query().Get("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 0 { writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a non-negative integer", r.URL.Path); return }
        limit = n
    }
    jobs, err := s.Tracker.ListPendingJobs(r.Context(), limit)
    if err != nil { s.writeError(w, r, "List geocode jobs failed", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// GeocodeResultsHandler handles POST /v1/geocode/results.
func (s *Server) GeocodeResultsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if !s.requireGeocodeWorker(w, r) { return }
    var req geocodeResultRequest
    if err := decodeJSON(w, r, &req, false); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if strings.TrimSpace(req.JobID) == "" { s.writeError(w, r, "Invalid geocode result", model.Invalid("jobId", "is required")); return }
    if req.Latitude == nil { s.writeError(w, r, "Invalid geocode result", model.Invalid("latitude", "is required")); return }
    if req.Longitude == nil { s.writeError(w, r, "Invalid geocode result", model.Invalid("longitude", "is required")); return }
    t, err := s.Tracker.RecordSuccess(r.Context(), req.JobID, model.GeocodeSuccess{
        Latitude:          *req.Latitude,
        Longitude:         *req.Longitude,
        Accuracy:          req.Accuracy,
        Meta:              req.Metadata,
        NormalizedAddress: req.NormalizedAddress,
    })
    if err != nil { s.writeError(w, r, "Record geocode result failed", err); return }
    writeJSON(w, http.StatusOK, t)
}

// GeocodeFailuresHandler handles POST /v1/geocode/failures.
func (s *Server) GeocodeFailuresHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if !s.requireGeocodeWorker(w, r) { return }
    var req geocodeFailureRequest
    if err := decodeJSON(w, r, &req, false); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if strings.TrimSpace(req.JobID) == "" { s.writeError(w, r, "Invalid geocode failure", model.Invalid("jobId", "is required")); return }
    t, err := s.Tracker.RecordFailure(r.Context(), req.JobID, model.GeocodeFailure{Error: req.ErrorMessage, Meta: req.Metadata})
    if err != nil { s.writeError(w, r, "Record geocode failure failed", err); return }
    writeJSON(w, http.StatusOK, t)
}

// AdminBulkGeocodeHandler handles POST /v1/admin/geocode/bulk and runs one batch inline.
func (s *Server) AdminBulkGeocodeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if !s.requireAdmin(w, r) { return }
    var req bulkGeocodeRequest
    if err := decodeJSON(w, r, &req, true); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.BatchSize < 0 { s.writeError(w, r, "Invalid bulk request", model.Invalid("batchSize", "must not be negative")); return }
    batch := req.BatchSize
    if batch == 0 { batch = s.Config.Geocode.BatchSize }
    delay := s.Config.Geocode.Delay
    if req.DelayMs != nil {
        if *req.DelayMs < 0 { s.writeError(w, r, "Invalid bulk request", model.Invalid("delayMs", "must not be negative")); return }
        delay = time.Duration(*req.DelayMs) * time.Millisecond
    }
    res, err := s.Tracker.BulkGeocode(r.Context(), batch, delay)
    if err != nil { s.writeError(w, r, "Bulk geocode failed", err); return }
    writeJSON(w, http.StatusOK, res)
}

