package store

import (
    "context"
    "errors"

    "fieldcrm/internal/model"
)

// Store is the persistence interface shared by the tracker, sequencer and API.
// Every multi-row mutation is atomic: callers never observe a partial stop set.
type Store interface {
    // Targets
    CreateTarget(ctx context.Context, in model.TargetInput) (model.Target, error)
    GetTarget(ctx context.Context, id string) (model.Target, error)
    ListTargets(ctx context.Context, cursor string, limit int) ([]model.Target, string, error)
    PatchTarget(ctx context.Context, id string, patch model.TargetPatch) (model.Target, error)

    // Geocoding bookkeeping
    ListPendingGeocode(ctx context.Context, limit int) ([]model.Target, error)
    RecordGeocodeFailure(ctx context.Context, id string, f model.GeocodeFailure) (model.Target, error)
    RecordGeocodeSuccess(ctx context.Context, id string, s model.GeocodeSuccess) (model.Target, error)
    ApplyVisitRollup(ctx context.Context, targetID string, r model.VisitRollup) error

    // Routes
    CreateRoute(ctx context.Context, in model.RouteInput) (model.Route, error)
    GetRoute(ctx context.Context, id string) (model.Route, error)
    ListRoutes(ctx context.Context, cursor string, limit int) ([]model.Route, string, error)
    DeleteRoute(ctx context.Context, id string) error

    // Stops
    ReplaceStops(ctx context.Context, routeID string, targetIDs []string) ([]model.RouteStop, error)
    AppendStop(ctx context.Context, routeID, targetID string) (model.RouteStop, error)
    SetStopOrder(ctx context.Context, routeID string, stopIDs []string) ([]model.RouteStop, error)
    GetStop(ctx context.Context, id string) (model.RouteStop, error)
    SetStopOutcome(ctx context.Context, stopID string, patch model.StopOutcomePatch) (model.RouteStop, error)
    ListStopsForTarget(ctx context.Context, targetID string) ([]model.RouteStop, error)

    Ping(ctx context.Context) error
}

var (
    ErrNotFound = model.ErrNotFound
    // ErrConflict reports a concurrent modification that made the request stale.
    ErrConflict = errors.New("conflict")
)

func clampLimit(limit, def, max int) int {
    if limit <= 0 { return def }
    if limit > max { return max }
    return limit
}

// sameStopSet reports whether ordered is a permutation of current.
func sameStopSet(current, ordered []string) bool {
    if len(current) != len(ordered) { return false }
    seen := make(map[string]bool, len(current))
    for _, id := range current { seen[id] = true }
    for _, id := range ordered {
        if !seen[id] { return false }
        delete(seen, id)
    }
    return len(seen) == 0
}

func missingTargets(ids []string, exists func(string) bool) error {
    var missing []string
    for _, id := range ids {
        if !exists(id) { missing = append(missing, id) }
    }
    if len(missing) > 0 { return model.Invalid("targetIds", "unknown target ids: %v", missing) }
    return nil
}
