package api

import (
    "sync"
    "time"
)

// Route event types published to stream subscribers.
const (
    EventRouteReordered     = "route.reordered"
    EventRouteStopsReplaced = "route.stops.replaced"
    EventRouteStopAppended  = "route.stop.appended"
    EventStopOutcome        = "stop.outcome"
)

type SSEEvent struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

func newEvent(typ string, data map[string]any) SSEEvent {
    if data == nil { data = map[string]any{} }
    data["ts"] = time.Now().UTC().Format(time.RFC3339)
    return SSEEvent{Type: typ, Data: data}
}

type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan SSEEvent]struct{} // routeId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(routeID string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[routeID] == nil { b.subs[routeID] = map[chan SSEEvent]struct{}{} }
    b.subs[routeID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(routeID string, ch chan SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[routeID]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, routeID) }
    close(ch)
}

// Publish fans evt out to the route's subscribers; slow subscribers miss events.
func (b *Broker) Publish(routeID string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[routeID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
