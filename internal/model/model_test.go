package model

import (
    "math"
    "strings"
    "testing"
    "time"
    "unicode/utf8"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func fieldOf(t *testing.T, err error) string {
    t.Helper()
    var ve *ValidationError
    require.ErrorAs(t, err, &ve)
    return ve.Field
}

func TestMetadataBounds(t *testing.T) {
    assert.NoError(t, Metadata(nil).Validate())
    assert.NoError(t, Metadata{"a": map[string]any{"b": []any{1, 2}}}.Validate())

    big := Metadata{"blob": strings.Repeat("x", MaxMetadataBytes)}
    assert.Equal(t, "metadata", fieldOf(t, big.Validate()))

    var deep any = "leaf"
    for i := 0; i < MaxMetadataDepth; i++ { deep = map[string]any{"n": deep} }
    assert.Equal(t, "metadata", fieldOf(t, Metadata{"root": deep}.Validate()))
}

func TestMetadataScan(t *testing.T) {
    var m Metadata
    require.NoError(t, m.Scan([]byte(`{"provider":"photon"}`)))
    assert.Equal(t, "photon", m["provider"])
    require.NoError(t, m.Scan(nil))
    assert.Nil(t, m)
    assert.Error(t, m.Scan(42))
}

func TestWithFailureIsMonotonic(t *testing.T) {
    tg := Target{GeocodeStatus: GeocodeMissing}
    var changed bool
    for i := 1; i <= MaxGeocodeAttempts; i++ {
        tg, changed = tg.WithFailure(GeocodeFailure{Error: "no match", Meta: Metadata{"try": i}}, t0)
        require.True(t, changed)
        assert.Equal(t, i, tg.GeocodeAttempts)
    }
    assert.Equal(t, GeocodeFailed, tg.GeocodeStatus)
    assert.Equal(t, MaxGeocodeAttempts, tg.GeocodeMeta["try"])

    after, changed := tg.WithFailure(GeocodeFailure{Error: "again"}, t0.Add(time.Hour))
    assert.False(t, changed)
    assert.Equal(t, tg, after)
}

func TestWithFailureDefaultsMessage(t *testing.T) {
    tg, _ := Target{GeocodeStatus: GeocodeMissing}.WithFailure(GeocodeFailure{}, t0)
    require.NotNil(t, tg.GeocodeLastError)
    assert.Equal(t, "geocoding failed", *tg.GeocodeLastError)

    tg, _ = Target{GeocodeStatus: GeocodeMissing}.WithFailure(GeocodeFailure{Error: strings.Repeat("e", 5000)}, t0)
    assert.Len(t, *tg.GeocodeLastError, maxErrorMessageLen)
}

func TestWithFailureTruncatesOnRuneBoundary(t *testing.T) {
    msg := strings.Repeat("a", maxErrorMessageLen-1) + "é and more"
    tg, _ := Target{GeocodeStatus: GeocodeMissing}.WithFailure(GeocodeFailure{Error: msg}, t0)
    require.NotNil(t, tg.GeocodeLastError)
    got := *tg.GeocodeLastError
    assert.True(t, utf8.ValidString(got))
    assert.LessOrEqual(t, len(got), maxErrorMessageLen)
    assert.Equal(t, strings.Repeat("a", maxErrorMessageLen-1), got)
}

func TestTruncateUTF8(t *testing.T) {
    assert.Equal(t, "short", TruncateUTF8("short", 10))
    assert.Equal(t, "ab", TruncateUTF8("abc", 2))
    assert.Equal(t, "", TruncateUTF8("日本", 2))
    assert.Equal(t, "日", TruncateUTF8("日本", 4))
}

func TestLateSuccessOnFailedTarget(t *testing.T) {
    tg := Target{GeocodeStatus: GeocodeFailed, GeocodeAttempts: MaxGeocodeAttempts, GeocodeMeta: Metadata{"a": 1}}
    tg = tg.WithSuccess(GeocodeSuccess{Latitude: 39.78, Longitude: -89.65, Meta: Metadata{"b": 2}}, t0)
    assert.Equal(t, GeocodeGeocoded, tg.GeocodeStatus)
    assert.Equal(t, MaxGeocodeAttempts, tg.GeocodeAttempts)
    assert.Equal(t, Metadata{"a": 1, "b": 2}, tg.GeocodeMeta)
    p, ok := tg.Coordinates()
    assert.True(t, ok)
    assert.Equal(t, Point{Lat: 39.78, Lng: -89.65}, p)
}

func TestGeocodeSuccessValidate(t *testing.T) {
    assert.NoError(t, GeocodeSuccess{Latitude: 90, Longitude: -180}.Validate())
    assert.Equal(t, "latitude", fieldOf(t, GeocodeSuccess{Latitude: 91}.Validate()))
    assert.Equal(t, "latitude", fieldOf(t, GeocodeSuccess{Latitude: math.NaN()}.Validate()))
    assert.Equal(t, "longitude", fieldOf(t, GeocodeSuccess{Longitude: math.Inf(1)}.Validate()))
    assert.Equal(t, "accuracy", fieldOf(t, GeocodeSuccess{Accuracy: ptr(strings.Repeat("a", 65))}.Validate()))
}

func TestPointUsable(t *testing.T) {
    assert.False(t, Point{}.Usable())
    assert.True(t, Point{}.InRange())
    assert.True(t, Point{Lat: 0, Lng: 1}.Usable())
    assert.False(t, Point{Lat: -91, Lng: 1}.Usable())
}

func TestParseOutcome(t *testing.T) {
    o, err := ParseOutcome(" no_answer ")
    require.NoError(t, err)
    assert.Equal(t, OutcomeNoAnswer, o)
    assert.Equal(t, "outcome", fieldOf(t, func() error { _, err := ParseOutcome(""); return err }()))
    _, err = ParseOutcome("MAYBE")
    assert.ErrorContains(t, err, "MAYBE")
}

func TestParseStrategy(t *testing.T) {
    s, err := ParseStrategy("")
    require.NoError(t, err)
    assert.Equal(t, StrategyNearestNeighbor, s)
    s, err = ParseStrategy("externalOptimizer")
    require.NoError(t, err)
    assert.Equal(t, StrategyExternalOptimizer, s)
    _, err = ParseStrategy("NEARESTNEIGHBOR")
    assert.Error(t, err)
}

func TestRollupFromStops(t *testing.T) {
    stops := []RouteStop{
        {Outcome: ptr(OutcomeVisited), VisitedAt: ptr(t0)},
        {Outcome: ptr(OutcomeNoAnswer), VisitedAt: ptr(t0.Add(2 * time.Hour))},
        {Outcome: ptr(OutcomeFollowUp), VisitedAt: ptr(t0.Add(time.Hour))},
        {},
    }
    r := RollupFromStops(stops)
    assert.Equal(t, 1, r.VisitedCount)
    assert.Equal(t, 1, r.NoAnswerCount)
    assert.Equal(t, 1, r.FollowUpCount)
    assert.Equal(t, 0, r.WrongAddressCount)
    require.NotNil(t, r.LastOutcome)
    assert.Equal(t, OutcomeNoAnswer, *r.LastOutcome)
    assert.Equal(t, t0.Add(2*time.Hour), *r.LastVisitedAt)

    assert.Equal(t, VisitRollup{}, RollupFromStops(nil))
}

func TestTargetPatch(t *testing.T) {
    assert.Equal(t, "name", fieldOf(t, TargetPatch{Name: ptr("  ")}.Validate()))
    assert.Equal(t, "latitude", fieldOf(t, TargetPatch{Latitude: ptr(1.0)}.Validate()))
    assert.Equal(t, "longitude", fieldOf(t, TargetPatch{Latitude: ptr(1.0), Longitude: ptr(200.0)}.Validate()))
    assert.True(t, TargetPatch{}.Empty())

    geocoded := Target{AddressRaw: "1 Main St", GeocodeStatus: GeocodeGeocoded, GeocodeAttempts: 2, Latitude: ptr(1.0), Longitude: ptr(2.0)}
    moved := TargetPatch{AddressRaw: ptr("2 Oak Ave")}.Apply(geocoded, t0)
    assert.Equal(t, GeocodeMissing, moved.GeocodeStatus)
    assert.Zero(t, moved.GeocodeAttempts)
    assert.Nil(t, moved.Latitude)

    same := TargetPatch{AddressRaw: ptr("1 Main St"), Name: ptr(" Acme ")}.Apply(geocoded, t0)
    assert.Equal(t, GeocodeGeocoded, same.GeocodeStatus)
    assert.Equal(t, "Acme", same.Name)

    manual := TargetPatch{Latitude: ptr(3.0), Longitude: ptr(4.0)}.Apply(Target{GeocodeStatus: GeocodeFailed}, t0)
    assert.Equal(t, GeocodeGeocoded, manual.GeocodeStatus)
    assert.Equal(t, "manual", *manual.GeocodeAccuracy)
}

func TestStopOutcomePatch(t *testing.T) {
    assert.Error(t, StopOutcomePatch{Outcome: "nope"}.Validate())
    assert.Equal(t, "note", fieldOf(t, StopOutcomePatch{Outcome: OutcomeVisited, Note: ptr(strings.Repeat("n", maxNoteLen+1))}.Validate()))

    prev := RouteStop{Note: ptr("gate code 12")}
    s := StopOutcomePatch{Outcome: "follow_up"}.Apply(prev, t0)
    assert.Equal(t, OutcomeFollowUp, *s.Outcome)
    assert.Equal(t, "gate code 12", *s.Note)
    assert.Equal(t, t0, *s.VisitedAt)

    at := time.Date(2026, 10, 2, 12, 0, 0, 0, time.FixedZone("CDT", -5*3600))
    s = StopOutcomePatch{Outcome: OutcomeVisited, VisitedAt: &at}.Apply(prev, t0)
    assert.Equal(t, time.UTC, s.VisitedAt.Location())
    assert.True(t, at.Equal(*s.VisitedAt))
}

func TestInputValidation(t *testing.T) {
    assert.Error(t, TargetInput{}.Validate())
    assert.NoError(t, TargetInput{AddressRaw: "1 Main St"}.Validate())
    assert.Equal(t, "scheduledFor", fieldOf(t, RouteInput{Name: "r", ScheduledFor: ptr("10/20/2026")}.Validate()))
    assert.Equal(t, "name", fieldOf(t, RouteInput{}.Validate()))
}

func TestUpstreamErrorMessage(t *testing.T) {
    err := &UpstreamError{Service: "osrm", Status: 502, Detail: "NoTrips"}
    assert.Equal(t, "osrm failed (status 502): NoTrips", err.Error())
    assert.ErrorIs(t, NotFound("route", "r1"), ErrNotFound)
}
