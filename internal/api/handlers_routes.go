package api

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "fieldcrm/internal/export"
    "fieldcrm/internal/model"
)

type reorderRequest struct {
    Strategy string `json:"strategy"`
}

type replaceStopsRequest struct {
    TargetIDs []string `json:"targetIds"`
}

type appendStopRequest struct {
    TargetID string `json:"targetId"`
}

func pageParams(r *http.Request) (cursor string, limit int, err error) {
    cursor = r.URL.Query().Get("cursor")
    if v := r.URL.Query().Get("limit"); v != "" {
        limit, err = strconv.Atoi(v)
        if err != nil || limit < 0 { return "", 0, model.Invalid("limit", "must be a non-negative integer") }
    }
    return cursor, limit, nil
}

// RoutesIndexHandler handles GET/POST /v1/routes.
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/routes" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        if _, ok := s.requirePrincipal(w, r); !ok { return }
        cursor, limit, err := pageParams(r)
        if err != nil { s.writeError(w, r, "List routes failed", err); return }
        items, next, err := s.Stops.ListRoutes(r.Context(), cursor, limit)
        if err != nil { s.writeError(w, r, "List routes failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    case http.MethodPost:
        pr, ok := s.requireDispatcher(w, r)
        if !ok { return }
        var in model.RouteInput
        if err := decodeJSON(w, r, &in, false); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if in.AssignedTo == nil && pr.UserID != "" {
            uid := pr.UserID
            in.AssignedTo = &uid
        }
        rt, err := s.Stops.CreateRoute(r.Context(), in)
        if err != nil { s.writeError(w, r, "Create route failed", err); return }
        w.Header().Set("Location", "/v1/routes/"+rt.ID)
        writeJSON(w, http.StatusCreated, rt)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// RouteByIDHandler handles /v1/routes/{id} and its sub-resources.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/routes/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
    id := parts[0]
    sub := strings.Join(parts[1:], "/")
    switch sub {
    case "":
        s.routeResource(w, r, id)
    case "reorder":
        s.reorderRoute(w, r, id)
    case "stops":
        s.routeStops(w, r, id)
    case "geometry":
        s.routeGeometry(w, r, id)
    case "export.xlsx":
        s.routeWalkList(w, r, id)
    case "events/stream":
        s.routeEventStream(w, r, id)
    case "events/ws":
        s.RouteEventsWSHandler(w, r, id)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", path)
    }
}

func (s *Server) routeResource(w http.ResponseWriter, r *http.Request, id string) {
    switch r.Method {
    case http.MethodGet:
        if _, ok := s.requirePrincipal(w, r); !ok { return }
        rt, err := s.Stops.GetRoute(r.Context(), id)
        if err != nil { s.writeError(w, r, "Route not found", err); return }
        writeJSON(w, http.StatusOK, rt)
    case http.MethodDelete:
        if _, ok := s.requireDispatcher(w, r); !ok { return }
        if err := s.Stops.DeleteRoute(r.Context(), id); err != nil { s.writeError(w, r, "Delete route failed", err); return }
        w.WriteHeader(http.StatusNoContent)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) reorderRoute(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.requirePrincipal(w, r); !ok { return }
    var req reorderRequest
    if err := decodeJSON(w, r, &req, true); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    strategy, err := model.ParseStrategy(req.Strategy)
    if err != nil { s.writeError(w, r, "Invalid strategy", err); return }
    res, err := s.Sequencer.Reorder(r.Context(), id, strategy)
    if err != nil { s.writeError(w, r, "Reorder failed", err); return }
    if res.Changed {
        s.Broker.Publish(id, newEvent(EventRouteReordered, map[string]any{
            "routeId":  id,
            "strategy": string(res.Strategy),
            "stopIds":  res.StopIDs,
        }))
    }
    writeJSON(w, http.StatusOK, res)
}

func (s *Server) routeStops(w http.ResponseWriter, r *http.Request, id string) {
    switch r.Method {
    case http.MethodPut:
        if _, ok := s.requireDispatcher(w, r); !ok { return }
        var req replaceStopsRequest
        if err := decodeJSON(w, r, &req, false); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", "targetIds must be an array of strings: "+err.Error(), r.URL.Path)
            return
        }
        stops, err := s.Stops.ReplaceStops(r.Context(), id, req.TargetIDs)
        if err != nil { s.writeError(w, r, "Replace stops failed", err); return }
        s.Broker.Publish(id, newEvent(EventRouteStopsReplaced, map[string]any{"routeId": id, "count": len(stops)}))
        writeJSON(w, http.StatusOK, map[string]any{"routeId": id, "stops": stops})
    case http.MethodPost:
        if _, ok := s.requireDispatcher(w, r); !ok { return }
        var req appendStopRequest
        if err := decodeJSON(w, r, &req, false); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        stop, err := s.Stops.AppendStop(r.Context(), id, req.TargetID)
        if err != nil { s.writeError(w, r, "Append stop failed", err); return }
        s.Broker.Publish(id, newEvent(EventRouteStopAppended, map[string]any{"routeId": id, "stopId": stop.ID, "seq": stop.Seq}))
        writeJSON(w, http.StatusCreated, stop)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) routeGeometry(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.requirePrincipal(w, r); !ok { return }
    rt, err := s.Stops.GetRoute(r.Context(), id)
    if err != nil { s.writeError(w, r, "Route not found", err); return }
    b, err := export.RouteGeoJSON(rt)
    if err != nil { s.writeError(w, r, "Render geometry failed", err); return }
    w.Header().Set("Content-Type", "application/geo+json")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(b)
}

func (s *Server) routeWalkList(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.requirePrincipal(w, r); !ok { return }
    rt, err := s.Stops.GetRoute(r.Context(), id)
    if err != nil { s.writeError(w, r, "Route not found", err); return }
    var buf bytes.Buffer
    if err := export.WriteWalkList(&buf, rt); err != nil { s.writeError(w, r, "Export failed", err); return }
    w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
    w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "route-"+rt.ID+".xlsx"))
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(buf.Bytes())
}

// routeEventStream serves route events as server-sent events with a heartbeat every 15s.
func (s *Server) routeEventStream(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.requirePrincipal(w, r); !ok { return }
    if _, err := s.Stops.GetRoute(r.Context(), id); err != nil { s.writeError(w, r, "Route not found", err); return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"routeId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, open := <-ch:
            if !open { return }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}
