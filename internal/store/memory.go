package store

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "fieldcrm/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// A single mutex makes every operation atomic.
type Memory struct {
    mu       sync.Mutex
    now      func() time.Time
    targets  map[string]model.Target    // id -> target
    tOrder   []string                   // target ids in creation order
    routes   map[string]model.Route     // id -> route (without stops)
    rOrder   []string                   // route ids in creation order
    stops    map[string]model.RouteStop // id -> stop
    byRoute  map[string][]string        // route id -> stop ids in seq order
}

func NewMemory() *Memory {
    return &Memory{
        now: func() time.Time { return time.Now().UTC() },
        targets: map[string]model.Target{},
        routes: map[string]model.Route{},
        stops: map[string]model.RouteStop{},
        byRoute: map[string][]string{},
    }
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateTarget(ctx context.Context, in model.TargetInput) (model.Target, error) {
    if err := in.Validate(); err != nil { return model.Target{}, err }
    m.mu.Lock(); defer m.mu.Unlock()
    now := m.now()
    t := model.Target{
        ID: uuid.New().String(),
        Name: strings.TrimSpace(in.Name),
        AddressRaw: in.AddressRaw,
        GeocodeStatus: model.GeocodeMissing,
        Version: 1,
        CreatedAt: now,
        UpdatedAt: now,
    }
    m.targets[t.ID] = t
    m.tOrder = append(m.tOrder, t.ID)
    return t, nil
}

func (m *Memory) GetTarget(ctx context.Context, id string) (model.Target, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.targets[id]
    if !ok { return model.Target{}, model.NotFound("target", id) }
    return t, nil
}

func (m *Memory) ListTargets(ctx context.Context, cursor string, limit int) ([]model.Target, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit, 100, 500)
    ids := pageIDs(m.tOrder, cursor, limit)
    out := make([]model.Target, 0, len(ids))
    for _, id := range ids { out = append(out, m.targets[id]) }
    return out, nextCursor(ids, limit), nil
}

func (m *Memory) PatchTarget(ctx context.Context, id string, patch model.TargetPatch) (model.Target, error) {
    if err := patch.Validate(); err != nil { return model.Target{}, err }
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.targets[id]
    if !ok { return model.Target{}, model.NotFound("target", id) }
    t = patch.Apply(t, m.now())
    t.Version++
    m.targets[id] = t
    return t, nil
}

func (m *Memory) ListPendingGeocode(ctx context.Context, limit int) ([]model.Target, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Target{}
    for _, id := range m.tOrder {
        t := m.targets[id]
        if t.GeocodeStatus != model.GeocodeMissing || strings.TrimSpace(t.AddressRaw) == "" { continue }
        if t.GeocodeAttempts >= model.MaxGeocodeAttempts { continue }
        out = append(out, t)
    }
    // creation order is already the secondary key
    sort.SliceStable(out, func(i, j int) bool { return out[i].GeocodeAttempts < out[j].GeocodeAttempts })
    if limit > 0 && len(out) > limit { out = out[:limit] }
    return out, nil
}

func (m *Memory) RecordGeocodeFailure(ctx context.Context, id string, f model.GeocodeFailure) (model.Target, error) {
    if err := f.Validate(); err != nil { return model.Target{}, err }
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.targets[id]
    if !ok { return model.Target{}, model.NotFound("target", id) }
    next, changed := t.WithFailure(f, m.now())
    if !changed { return t, nil }
    next.Version++
    m.targets[id] = next
    return next, nil
}

func (m *Memory) RecordGeocodeSuccess(ctx context.Context, id string, s model.GeocodeSuccess) (model.Target, error) {
    if err := s.Validate(); err != nil { return model.Target{}, err }
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.targets[id]
    if !ok { return model.Target{}, model.NotFound("target", id) }
    t = t.WithSuccess(s, m.now())
    t.Version++
    m.targets[id] = t
    return t, nil
}

func (m *Memory) ApplyVisitRollup(ctx context.Context, targetID string, r model.VisitRollup) error {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.targets[targetID]
    if !ok { return model.NotFound("target", targetID) }
    t.VisitedCount = r.VisitedCount
    t.NoAnswerCount = r.NoAnswerCount
    t.WrongAddressCount = r.WrongAddressCount
    t.FollowUpCount = r.FollowUpCount
    t.LastOutcome = r.LastOutcome
    t.LastVisitedAt = r.LastVisitedAt
    t.UpdatedAt = m.now()
    t.Version++
    m.targets[targetID] = t
    return nil
}

func (m *Memory) CreateRoute(ctx context.Context, in model.RouteInput) (model.Route, error) {
    if err := in.Validate(); err != nil { return model.Route{}, err }
    m.mu.Lock(); defer m.mu.Unlock()
    now := m.now()
    r := model.Route{ID: uuid.New().String(), Name: strings.TrimSpace(in.Name), AssignedTo: in.AssignedTo, ScheduledFor: in.ScheduledFor, CreatedAt: now, UpdatedAt: now}
    m.routes[r.ID] = r
    m.rOrder = append(m.rOrder, r.ID)
    r.Stops = []model.RouteStop{}
    return r, nil
}

func (m *Memory) GetRoute(ctx context.Context, id string) (model.Route, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.routes[id]
    if !ok { return model.Route{}, model.NotFound("route", id) }
    r.Stops = m.routeStopsLocked(id, true)
    return r, nil
}

func (m *Memory) ListRoutes(ctx context.Context, cursor string, limit int) ([]model.Route, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit, 100, 500)
    ids := pageIDs(m.rOrder, cursor, limit)
    out := make([]model.Route, 0, len(ids))
    for _, id := range ids {
        r := m.routes[id]
        r.Stops = m.routeStopsLocked(id, false)
        out = append(out, r)
    }
    return out, nextCursor(ids, limit), nil
}

func (m *Memory) DeleteRoute(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.routes[id]; !ok { return model.NotFound("route", id) }
    for _, sid := range m.byRoute[id] { delete(m.stops, sid) }
    delete(m.byRoute, id)
    delete(m.routes, id)
    for i, rid := range m.rOrder {
        if rid == id { m.rOrder = append(m.rOrder[:i], m.rOrder[i+1:]...); break }
    }
    return nil
}

func (m *Memory) ReplaceStops(ctx context.Context, routeID string, targetIDs []string) ([]model.RouteStop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.routes[routeID]; !ok { return nil, model.NotFound("route", routeID) }
    if err := missingTargets(targetIDs, func(id string) bool { _, ok := m.targets[id]; return ok }); err != nil {
        return nil, err
    }
    for _, sid := range m.byRoute[routeID] { delete(m.stops, sid) }
    now := m.now()
    ids := make([]string, 0, len(targetIDs))
    for i, tid := range targetIDs {
        s := model.RouteStop{ID: uuid.New().String(), RouteID: routeID, TargetID: tid, Seq: i + 1, CreatedAt: now}
        m.stops[s.ID] = s
        ids = append(ids, s.ID)
    }
    m.byRoute[routeID] = ids
    m.touchRouteLocked(routeID, now)
    return m.routeStopsLocked(routeID, false), nil
}

func (m *Memory) AppendStop(ctx context.Context, routeID, targetID string) (model.RouteStop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.routes[routeID]; !ok { return model.RouteStop{}, model.NotFound("route", routeID) }
    if _, ok := m.targets[targetID]; !ok { return model.RouteStop{}, model.Invalid("targetId", "unknown target id: %s", targetID) }
    max := 0
    for _, sid := range m.byRoute[routeID] {
        if s := m.stops[sid]; s.Seq > max { max = s.Seq }
    }
    now := m.now()
    s := model.RouteStop{ID: uuid.New().String(), RouteID: routeID, TargetID: targetID, Seq: max + 1, CreatedAt: now}
    m.stops[s.ID] = s
    m.byRoute[routeID] = append(m.byRoute[routeID], s.ID)
    m.touchRouteLocked(routeID, now)
    return s, nil
}

func (m *Memory) SetStopOrder(ctx context.Context, routeID string, stopIDs []string) ([]model.RouteStop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.routes[routeID]; !ok { return nil, model.NotFound("route", routeID) }
    if !sameStopSet(m.byRoute[routeID], stopIDs) { return nil, ErrConflict }
    for i, sid := range stopIDs {
        s := m.stops[sid]
        s.Seq = i + 1
        m.stops[sid] = s
    }
    m.byRoute[routeID] = append([]string(nil), stopIDs...)
    m.touchRouteLocked(routeID, m.now())
    return m.routeStopsLocked(routeID, false), nil
}

func (m *Memory) GetStop(ctx context.Context, id string) (model.RouteStop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.stops[id]
    if !ok { return model.RouteStop{}, model.NotFound("stop", id) }
    return s, nil
}

func (m *Memory) SetStopOutcome(ctx context.Context, stopID string, patch model.StopOutcomePatch) (model.RouteStop, error) {
    if err := patch.Validate(); err != nil { return model.RouteStop{}, err }
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.stops[stopID]
    if !ok { return model.RouteStop{}, model.NotFound("stop", stopID) }
    s = patch.Apply(s, m.now())
    m.stops[stopID] = s
    return s, nil
}

func (m *Memory) ListStopsForTarget(ctx context.Context, targetID string) ([]model.RouteStop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.RouteStop{}
    for _, rid := range m.rOrder {
        for _, sid := range m.byRoute[rid] {
            if s := m.stops[sid]; s.TargetID == targetID { out = append(out, s) }
        }
    }
    return out, nil
}

func (m *Memory) routeStopsLocked(routeID string, withTargets bool) []model.RouteStop {
    out := make([]model.RouteStop, 0, len(m.byRoute[routeID]))
    for _, sid := range m.byRoute[routeID] {
        s := m.stops[sid]
        if withTargets {
            if t, ok := m.targets[s.TargetID]; ok { s.Target = &t }
        }
        out = append(out, s)
    }
    return out
}

func (m *Memory) touchRouteLocked(routeID string, now time.Time) {
    r := m.routes[routeID]
    r.UpdatedAt = now
    m.routes[routeID] = r
}

// pageIDs returns up to limit ids following cursor in ids order.
func pageIDs(ids []string, cursor string, limit int) []string {
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    end := start + limit
    if end > len(ids) { end = len(ids) }
    if start > end { return nil }
    return append([]string(nil), ids[start:end]...)
}

func nextCursor(ids []string, limit int) string {
    if len(ids) < limit || len(ids) == 0 { return "" }
    return ids[len(ids)-1]
}
