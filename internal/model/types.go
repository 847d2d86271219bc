package model

import (
    "strings"
    "time"
)

// Core domain types for targets, routes and their stops.

type GeocodeStatus string

const (
    GeocodeMissing  GeocodeStatus = "missing"
    GeocodeGeocoded GeocodeStatus = "geocoded"
    GeocodeFailed   GeocodeStatus = "failed"
)

// MaxGeocodeAttempts is the failure count at which a target stops being retried.
const MaxGeocodeAttempts = 3

func (s GeocodeStatus) Valid() bool {
    switch s {
    case GeocodeMissing, GeocodeGeocoded, GeocodeFailed:
        return true
    }
    return false
}

type Target struct {
    ID                string        `json:"id" db:"id"`
    Name              string        `json:"name" db:"name"`
    AddressRaw        string        `json:"addressRaw" db:"address_raw"`
    AddressNormalized *string       `json:"addressNormalized,omitempty" db:"address_normalized"`
    Latitude          *float64      `json:"latitude,omitempty" db:"latitude"`
    Longitude         *float64      `json:"longitude,omitempty" db:"longitude"`
    GeocodeStatus     GeocodeStatus `json:"geocodeStatus" db:"geocode_status"`
    GeocodeAttempts   int           `json:"geocodeAttempts" db:"geocode_attempts"`
    GeocodeLastError  *string       `json:"geocodeLastError,omitempty" db:"geocode_last_error"`
    GeocodeMeta       Metadata      `json:"geocodeMeta,omitempty" db:"geocode_meta"`
    GeocodeAccuracy   *string       `json:"geocodeAccuracy,omitempty" db:"geocode_accuracy"`
    GeocodedAt        *time.Time    `json:"geocodedAt,omitempty" db:"geocoded_at"`
    VisitedCount      int           `json:"visitedCount" db:"visited_count"`
    NoAnswerCount     int           `json:"noAnswerCount" db:"no_answer_count"`
    WrongAddressCount int           `json:"wrongAddressCount" db:"wrong_address_count"`
    FollowUpCount     int           `json:"followUpCount" db:"follow_up_count"`
    LastOutcome       *Outcome      `json:"lastOutcome,omitempty" db:"last_outcome"`
    LastVisitedAt     *time.Time    `json:"lastVisitedAt,omitempty" db:"last_visited_at"`
    Version           int           `json:"version" db:"version"`
    CreatedAt         time.Time     `json:"createdAt" db:"created_at"`
    UpdatedAt         time.Time     `json:"updatedAt" db:"updated_at"`
}

// Coordinates returns the target position when both components are set and in range.
func (t Target) Coordinates() (Point, bool) {
    if t.Latitude == nil || t.Longitude == nil { return Point{}, false }
    p := Point{Lat: *t.Latitude, Lng: *t.Longitude}
    return p, p.InRange()
}

type TargetInput struct {
    Name       string `json:"name"`
    AddressRaw string `json:"addressRaw"`
}

func (in TargetInput) Validate() error {
    if strings.TrimSpace(in.Name) == "" && strings.TrimSpace(in.AddressRaw) == "" {
        return Invalid("name", "name or addressRaw is required")
    }
    if len(in.AddressRaw) > 1000 { return Invalid("addressRaw", "must be at most 1000 characters") }
    return nil
}

type Route struct {
    ID           string      `json:"id" db:"id"`
    Name         string      `json:"name" db:"name"`
    AssignedTo   *string     `json:"assignedTo,omitempty" db:"assigned_to"`
    ScheduledFor *string     `json:"scheduledFor,omitempty" db:"scheduled_for"`
    Stops        []RouteStop `json:"stops" db:"-"`
    CreatedAt    time.Time   `json:"createdAt" db:"created_at"`
    UpdatedAt    time.Time   `json:"updatedAt" db:"updated_at"`
}

// StopIDs lists the route's stop ids in visit order.
func (r Route) StopIDs() []string {
    out := make([]string, 0, len(r.Stops))
    for _, s := range r.Stops { out = append(out, s.ID) }
    return out
}

type RouteInput struct {
    Name         string  `json:"name"`
    AssignedTo   *string `json:"assignedTo,omitempty"`
    ScheduledFor *string `json:"scheduledFor,omitempty"`
}

func (in RouteInput) Validate() error {
    if strings.TrimSpace(in.Name) == "" { return Invalid("name", "is required") }
    if in.ScheduledFor != nil {
        if _, err := time.Parse(time.DateOnly, *in.ScheduledFor); err != nil {
            return Invalid("scheduledFor", "must be a YYYY-MM-DD date")
        }
    }
    return nil
}

type RouteStop struct {
    ID        string     `json:"id" db:"id"`
    RouteID   string     `json:"routeId" db:"route_id"`
    TargetID  string     `json:"targetId" db:"target_id"`
    Seq       int        `json:"seq" db:"seq"`
    Outcome   *Outcome   `json:"outcome,omitempty" db:"outcome"`
    Note      *string    `json:"note,omitempty" db:"note"`
    VisitedAt *time.Time `json:"visitedAt,omitempty" db:"visited_at"`
    CreatedAt time.Time  `json:"createdAt" db:"created_at"`
    Target    *Target    `json:"target,omitempty" db:"-"`
}

type Outcome string

const (
    OutcomeVisited      Outcome = "VISITED"
    OutcomeNoAnswer     Outcome = "NO_ANSWER"
    OutcomeWrongAddress Outcome = "WRONG_ADDRESS"
    OutcomeFollowUp     Outcome = "FOLLOW_UP"
)

// ParseOutcome accepts the canonical outcome names, case-insensitively.
func ParseOutcome(s string) (Outcome, error) {
    o := Outcome(strings.ToUpper(strings.TrimSpace(s)))
    switch o {
    case OutcomeVisited, OutcomeNoAnswer, OutcomeWrongAddress, OutcomeFollowUp:
        return o, nil
    }
    if o == "" { return "", Invalid("outcome", "is required") }
    return "", Invalid("outcome", "unknown outcome %q (allowed: VISITED, NO_ANSWER, WRONG_ADDRESS, FOLLOW_UP)", s)
}

type Strategy string

const (
    StrategyNearestNeighbor   Strategy = "nearestNeighbor"
    StrategyExternalOptimizer Strategy = "externalOptimizer"
)

func ParseStrategy(s string) (Strategy, error) {
    switch Strategy(s) {
    case "", StrategyNearestNeighbor:
        return StrategyNearestNeighbor, nil
    case StrategyExternalOptimizer:
        return StrategyExternalOptimizer, nil
    }
    return "", Invalid("strategy", "unknown strategy %q (allowed: nearestNeighbor, externalOptimizer)", s)
}

// GeocodeJob is the claim shape handed to an external geocoding worker.
type GeocodeJob struct {
    ID                    string  `json:"id"`
    AddressText           string  `json:"addressText"`
    NormalizedAddressText *string `json:"normalizedAddressText,omitempty"`
    AttemptsSoFar         int     `json:"attemptsSoFar"`
}

// VisitRollup is the per-target projection of stop outcomes.
type VisitRollup struct {
    VisitedCount      int
    NoAnswerCount     int
    WrongAddressCount int
    FollowUpCount     int
    LastOutcome       *Outcome
    LastVisitedAt     *time.Time
}

// RollupFromStops recomputes the projection from every stop that references a target.
// The most recent visitedAt decides lastOutcome; stops without an outcome are ignored.
func RollupFromStops(stops []RouteStop) VisitRollup {
    var r VisitRollup
    for _, s := range stops {
        if s.Outcome == nil { continue }
        switch *s.Outcome {
        case OutcomeVisited:
            r.VisitedCount++
        case OutcomeNoAnswer:
            r.NoAnswerCount++
        case OutcomeWrongAddress:
            r.WrongAddressCount++
        case OutcomeFollowUp:
            r.FollowUpCount++
        }
        if s.VisitedAt != nil && (r.LastVisitedAt == nil || s.VisitedAt.After(*r.LastVisitedAt)) {
            at := *s.VisitedAt
            o := *s.Outcome
            r.LastVisitedAt = &at
            r.LastOutcome = &o
        }
    }
    return r
}
