package api

import (
    "net/http"
    "strings"
    "time"

    "fieldcrm/internal/model"
    "fieldcrm/internal/stops"
)

type stopOutcomeRequest struct {
    Outcome   string     `json:"outcome"`
    Note      *string    `json:"note,omitempty"`
    VisitedAt *time.Time `json:"visitedAt,omitempty"`
}

type stopOutcomeResponse struct {
    Stop   model.RouteStop    `json:"stop"`
    Rollup stops.RollupResult `json:"rollup"`
}

// StopByIDHandler handles PATCH /v1/stops/{id} (record a visit outcome) and GET.
func (s *Server) StopByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/stops/"), "/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    if _, ok := s.requirePrincipal(w, r); !ok { return }
    switch r.Method {
    case http.MethodGet:
        stop, err := s.Store.GetStop(r.Context(), id)
        if err != nil { s.writeError(w, r, "Stop not found", err); return }
        writeJSON(w, http.StatusOK, stop)
    case http.MethodPatch:
        var req stopOutcomeRequest
        if err := decodeJSON(w, r, &req, false); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        outcome, err := model.ParseOutcome(req.Outcome)
        if err != nil { s.writeError(w, r, "Invalid outcome", err); return }
        stop, roll, err := s.Stops.RecordOutcome(r.Context(), id, model.StopOutcomePatch{Outcome: outcome, Note: req.Note, VisitedAt: req.VisitedAt})
        if err != nil { s.writeError(w, r, "Record outcome failed", err); return }
        s.Broker.Publish(stop.RouteID, newEvent(EventStopOutcome, map[string]any{
            "routeId": stop.RouteID,
            "stopId":  stop.ID,
            "outcome": string(outcome),
        }))
        writeJSON(w, http.StatusOK, stopOutcomeResponse{Stop: stop, Rollup: roll})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}
