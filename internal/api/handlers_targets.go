package api

import (
    "net/http"
    "strings"

    "fieldcrm/internal/model"
)

// TargetsHandler handles GET/POST /v1/targets.
func (s *Server) TargetsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/targets" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        if _, ok := s.requirePrincipal(w, r); !ok { return }
        cursor, limit, err := pageParams(r)
        if err != nil { s.writeError(w, r, "List targets failed", err); return }
        items, next, err := s.Stops.ListTargets(r.Context(), cursor, limit)
        if err != nil { s.writeError(w, r, "List targets failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    case http.MethodPost:
        if _, ok := s.requireDispatcher(w, r); !ok { return }
        var in model.TargetInput
        if err := decodeJSON(w, r, &in, false); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        t, err := s.Stops.CreateTarget(r.Context(), in)
        if err != nil { s.writeError(w, r, "Create target failed", err); return }
        w.Header().Set("Location", "/v1/targets/"+t.ID)
        writeJSON(w, http.StatusCreated, t)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// TargetByIDHandler handles GET/PATCH /v1/targets/{id}.
func (s *Server) TargetByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/targets/"), "/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        if _, ok := s.requirePrincipal(w, r); !ok { return }
        t, err := s.Stops.GetTarget(r.Context(), id)
        if err != nil { s.writeError(w, r, "Target not found", err); return }
        writeJSON(w, http.StatusOK, t)
    case http.MethodPatch:
        if _, ok := s.requireDispatcher(w, r); !ok { return }
        var patch model.TargetPatch
        if err := decodeJSON(w, r, &patch, false); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        t, err := s.Stops.PatchTarget(r.Context(), id, patch)
        if err != nil { s.writeError(w, r, "Update target failed", err); return }
        writeJSON(w, http.StatusOK, t)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}
