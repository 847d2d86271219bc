package model

import (
    "math"
    "strings"
    "time"
    "unicode/utf8"
)

const (
    maxErrorMessageLen = 2000
    maxNoteLen         = 4000
    maxAccuracyLen     = 64
)

// GeocodeSuccess is a resolved position submitted for a target.
type GeocodeSuccess struct {
    Latitude          float64
    Longitude         float64
    Accuracy          *string
    Meta              Metadata
    NormalizedAddress *string
}

// Validate rejects out-of-range coordinates instead of clamping them.
func (s GeocodeSuccess) Validate() error {
    if math.IsNaN(s.Latitude) || math.IsInf(s.Latitude, 0) || s.Latitude < -90 || s.Latitude > 90 {
        return Invalid("latitude", "must be a finite number within [-90, 90], got %v", s.Latitude)
    }
    if math.IsNaN(s.Longitude) || math.IsInf(s.Longitude, 0) || s.Longitude < -180 || s.Longitude > 180 {
        return Invalid("longitude", "must be a finite number within [-180, 180], got %v", s.Longitude)
    }
    if s.Accuracy != nil && len(*s.Accuracy) > maxAccuracyLen {
        return Invalid("accuracy", "must be at most %d characters", maxAccuracyLen)
    }
    return s.Meta.Validate()
}

// GeocodeFailure is a failed lookup reported for a target.
type GeocodeFailure struct {
    Error string
    Meta  Metadata
}

func (f GeocodeFailure) Validate() error { return f.Meta.Validate() }

// WithFailure applies one failed attempt. Terminal targets are returned unchanged
// with changed=false, so attempts never decrease and failed never reverts.
func (t Target) WithFailure(f GeocodeFailure, now time.Time) (out Target, changed bool) {
    if t.GeocodeStatus != GeocodeMissing { return t, false }
    t.GeocodeAttempts++
    if t.GeocodeAttempts >= MaxGeocodeAttempts { t.GeocodeStatus = GeocodeFailed }
    msg := f.Error
    if msg == "" { msg = "geocoding failed" }
    msg = TruncateUTF8(msg, maxErrorMessageLen)
    t.GeocodeLastError = &msg
    t.GeocodeMeta = MergeMetadata(t.GeocodeMeta, f.Meta)
    t.UpdatedAt = now
    return t, true
}

// WithSuccess marks the target geocoded. A later success refreshes coordinates,
// and a late success on a failed target is accepted.
func (t Target) WithSuccess(s GeocodeSuccess, now time.Time) Target {
    lat, lng := s.Latitude, s.Longitude
    t.Latitude = &lat
    t.Longitude = &lng
    t.GeocodeStatus = GeocodeGeocoded
    t.GeocodeAccuracy = s.Accuracy
    t.GeocodeMeta = MergeMetadata(t.GeocodeMeta, s.Meta)
    if s.NormalizedAddress != nil { t.AddressNormalized = s.NormalizedAddress }
    at := now
    t.GeocodedAt = &at
    t.UpdatedAt = now
    return t
}

// TargetPatch enumerates every field a caller may update on a target.
// A nil field is left untouched.
type TargetPatch struct {
    Name       *string  `json:"name,omitempty"`
    AddressRaw *string  `json:"addressRaw,omitempty"`
    Latitude   *float64 `json:"latitude,omitempty"`
    Longitude  *float64 `json:"longitude,omitempty"`
}

// Validate checks each field's rule:
//   - name: non-blank when set
//   - addressRaw: at most 1000 characters
//   - latitude/longitude: set together, inside WGS84 bounds
func (p TargetPatch) Validate() error {
    if p.Name != nil && strings.TrimSpace(*p.Name) == "" { return Invalid("name", "must not be blank") }
    if p.AddressRaw != nil && len(*p.AddressRaw) > 1000 { return Invalid("addressRaw", "must be at most 1000 characters") }
    if (p.Latitude == nil) != (p.Longitude == nil) {
        return Invalid("latitude", "latitude and longitude must be set together")
    }
    if p.Latitude != nil {
        return GeocodeSuccess{Latitude: *p.Latitude, Longitude: *p.Longitude}.Validate()
    }
    return nil
}

func (p TargetPatch) Empty() bool {
    return p.Name == nil && p.AddressRaw == nil && p.Latitude == nil
}

// Apply returns the patched target. Changing the address discards the previous
// geocode so the target re-enters the pending queue; explicit coordinates are
// recorded as a manual geocode.
func (p TargetPatch) Apply(t Target, now time.Time) Target {
    if p.Name != nil { t.Name = strings.TrimSpace(*p.Name) }
    if p.AddressRaw != nil && *p.AddressRaw != t.AddressRaw {
        t.AddressRaw = *p.AddressRaw
        t.AddressNormalized = nil
        t.Latitude, t.Longitude = nil, nil
        t.GeocodeStatus = GeocodeMissing
        t.GeocodeAttempts = 0
        t.GeocodeLastError = nil
        t.GeocodeMeta = nil
        t.GeocodeAccuracy = nil
        t.GeocodedAt = nil
    }
    if p.Latitude != nil {
        manual := "manual"
        t = t.WithSuccess(GeocodeSuccess{
            Latitude:  *p.Latitude,
            Longitude: *p.Longitude,
            Accuracy:  &manual,
            Meta:      Metadata{"source": "manual"},
        }, now)
    }
    t.UpdatedAt = now
    return t
}

// StopOutcomePatch is the outcome recorded for one stop visit.
type StopOutcomePatch struct {
    Outcome   Outcome
    Note      *string
    VisitedAt *time.Time
}

func (p StopOutcomePatch) Validate() error {
    if _, err := ParseOutcome(string(p.Outcome)); err != nil { return err }
    if p.Note != nil && len(*p.Note) > maxNoteLen { return Invalid("note", "must be at most %d characters", maxNoteLen) }
    return nil
}

// Apply sets the outcome. A missing visitedAt defaults to now; a nil note keeps the previous one.
func (p StopOutcomePatch) Apply(s RouteStop, now time.Time) RouteStop {
    o := p.Outcome
    if parsed, err := ParseOutcome(string(o)); err == nil { o = parsed }
    s.Outcome = &o
    if p.Note != nil { s.Note = p.Note }
    at := now
    if p.VisitedAt != nil { at = p.VisitedAt.UTC() }
    s.VisitedAt = &at
    return s
}

// TruncateUTF8 cuts s to at most n bytes without splitting a rune.
func TruncateUTF8(s string, n int) string {
    if len(s) <= n { return s }
    for n > 0 && !utf8.RuneStart(s[n]) { n-- }
    return s[:n]
}
