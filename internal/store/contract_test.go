package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcrm/internal/model"
)

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, st Store) {
	ctx := context.Background()

	newTarget := func(t *testing.T, name, addr string) model.Target {
		t.Helper()
		tg, err := st.CreateTarget(ctx, model.TargetInput{Name: name, AddressRaw: addr})
		require.NoError(t, err)
		return tg
	}
	seqs := func(stops []model.RouteStop) []int {
		out := make([]int, len(stops))
		for i, s := range stops {
			out[i] = s.Seq
		}
		return out
	}

	t.Run("target not found", func(t *testing.T) {
		_, err := st.GetTarget(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
		var nf *model.NotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("pending prefers fewer attempts", func(t *testing.T) {
		a := newTarget(t, "A", "1 First St, Springfield")
		b := newTarget(t, "B", "2 Second St, Springfield")
		blank := newTarget(t, "Blank", "   ")
		_, err := st.RecordGeocodeFailure(ctx, a.ID, model.GeocodeFailure{Error: "timeout"})
		require.NoError(t, err)

		pending, err := st.ListPendingGeocode(ctx, 1000)
		require.NoError(t, err)
		pos := map[string]int{}
		for i, p := range pending {
			pos[p.ID] = i
		}
		require.Contains(t, pos, a.ID)
		require.Contains(t, pos, b.ID)
		assert.NotContains(t, pos, blank.ID)
		assert.Less(t, pos[b.ID], pos[a.ID])
	})

	t.Run("failures are monotonic", func(t *testing.T) {
		tg := newTarget(t, "F", "3 Third St")
		for i := 1; i <= model.MaxGeocodeAttempts; i++ {
			got, err := st.RecordGeocodeFailure(ctx, tg.ID, model.GeocodeFailure{Error: "no result", Meta: model.Metadata{"try": float64(i)}})
			require.NoError(t, err)
			assert.Equal(t, i, got.GeocodeAttempts)
		}
		got, err := st.GetTarget(ctx, tg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.GeocodeFailed, got.GeocodeStatus)
		assert.Equal(t, float64(3), got.GeocodeMeta["try"])

		again, err := st.RecordGeocodeFailure(ctx, tg.ID, model.GeocodeFailure{Error: "late"})
		require.NoError(t, err)
		assert.Equal(t, model.MaxGeocodeAttempts, again.GeocodeAttempts)
		assert.Equal(t, model.GeocodeFailed, again.GeocodeStatus)
		require.NotNil(t, again.GeocodeLastError)
		assert.Equal(t, "no result", *again.GeocodeLastError)

		pending, err := st.ListPendingGeocode(ctx, 1000)
		require.NoError(t, err)
		for _, p := range pending {
			assert.NotEqual(t, tg.ID, p.ID)
		}
	})

	t.Run("success records coordinates", func(t *testing.T) {
		tg := newTarget(t, "S", "4 Fourth St")
		acc := "rooftop"
		got, err := st.RecordGeocodeSuccess(ctx, tg.ID, model.GeocodeSuccess{Latitude: 39.78, Longitude: -89.65, Accuracy: &acc, Meta: model.Metadata{"provider": "photon"}})
		require.NoError(t, err)
		assert.Equal(t, model.GeocodeGeocoded, got.GeocodeStatus)
		reread, err := st.GetTarget(ctx, tg.ID)
		require.NoError(t, err)
		require.NotNil(t, reread.Latitude)
		assert.InDelta(t, 39.78, *reread.Latitude, 1e-9)
		assert.InDelta(t, -89.65, *reread.Longitude, 1e-9)
		assert.Equal(t, "photon", reread.GeocodeMeta["provider"])
		assert.NotNil(t, reread.GeocodedAt)

		// a failure after success is a no-op
		after, err := st.RecordGeocodeFailure(ctx, tg.ID, model.GeocodeFailure{Error: "stale"})
		require.NoError(t, err)
		assert.Equal(t, model.GeocodeGeocoded, after.GeocodeStatus)
		assert.Equal(t, 0, after.GeocodeAttempts)
	})

	t.Run("address patch resets geocode", func(t *testing.T) {
		tg := newTarget(t, "P", "5 Fifth St")
		_, err := st.RecordGeocodeSuccess(ctx, tg.ID, model.GeocodeSuccess{Latitude: 1, Longitude: 2})
		require.NoError(t, err)
		addr := "6 Sixth St"
		got, err := st.PatchTarget(ctx, tg.ID, model.TargetPatch{AddressRaw: &addr})
		require.NoError(t, err)
		assert.Equal(t, model.GeocodeMissing, got.GeocodeStatus)
		assert.Nil(t, got.Latitude)
		reread, err := st.GetTarget(ctx, tg.ID)
		require.NoError(t, err)
		assert.Equal(t, addr, reread.AddressRaw)
		assert.Nil(t, reread.Longitude)
	})

	t.Run("replace and append keep seq contiguous", func(t *testing.T) {
		a, b, c := newTarget(t, "a", "a st"), newTarget(t, "b", "b st"), newTarget(t, "c", "c st")
		rt, err := st.CreateRoute(ctx, model.RouteInput{Name: "Tuesday north"})
		require.NoError(t, err)

		stops, err := st.ReplaceStops(ctx, rt.ID, []string{c.ID, a.ID, b.ID})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, seqs(stops))

		_, err = st.ReplaceStops(ctx, rt.ID, []string{a.ID, "missing-target"})
		var ve *model.ValidationError
		require.True(t, errors.As(err, &ve))
		got, err := st.GetRoute(ctx, rt.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{got.Stops[0].TargetID, got.Stops[1].TargetID, got.Stops[2].TargetID})
		require.NotNil(t, got.Stops[0].Target)
		assert.Equal(t, "c", got.Stops[0].Target.Name)

		added, err := st.AppendStop(ctx, rt.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, added.Seq)

		stops, err = st.ReplaceStops(ctx, rt.ID, []string{})
		require.NoError(t, err)
		assert.Empty(t, stops)
		first, err := st.AppendStop(ctx, rt.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Seq)

		_, err = st.ReplaceStops(ctx, "no-route", []string{a.ID})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("stop order is a permutation", func(t *testing.T) {
		a, b, c := newTarget(t, "a", "a st"), newTarget(t, "b", "b st"), newTarget(t, "c", "c st")
		rt, err := st.CreateRoute(ctx, model.RouteInput{Name: "order"})
		require.NoError(t, err)
		stops, err := st.ReplaceStops(ctx, rt.ID, []string{a.ID, b.ID, c.ID})
		require.NoError(t, err)

		reordered, err := st.SetStopOrder(ctx, rt.ID, []string{stops[0].ID, stops[2].ID, stops[1].ID})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, seqs(reordered))
		assert.Equal(t, stops[2].ID, reordered[1].ID)

		_, err = st.SetStopOrder(ctx, rt.ID, []string{stops[0].ID, stops[1].ID})
		assert.True(t, errors.Is(err, ErrConflict))
		got, err := st.GetRoute(ctx, rt.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{stops[0].ID, stops[2].ID, stops[1].ID}, got.StopIDs())
	})

	t.Run("outcome and rollup", func(t *testing.T) {
		tg := newTarget(t, "o", "o st")
		rt, err := st.CreateRoute(ctx, model.RouteInput{Name: "outcomes"})
		require.NoError(t, err)
		stops, err := st.ReplaceStops(ctx, rt.ID, []string{tg.ID, tg.ID})
		require.NoError(t, err)

		at := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
		note := "left flyer"
		got, err := st.SetStopOutcome(ctx, stops[0].ID, model.StopOutcomePatch{Outcome: model.OutcomeNoAnswer, Note: &note, VisitedAt: &at})
		require.NoError(t, err)
		require.NotNil(t, got.Outcome)
		assert.Equal(t, model.OutcomeNoAnswer, *got.Outcome)

		_, err = st.SetStopOutcome(ctx, stops[1].ID, model.StopOutcomePatch{Outcome: model.OutcomeVisited, VisitedAt: ptrTime(at.Add(time.Hour))})
		require.NoError(t, err)

		all, err := st.ListStopsForTarget(ctx, tg.ID)
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.NoError(t, st.ApplyVisitRollup(ctx, tg.ID, model.RollupFromStops(all)))

		reread, err := st.GetTarget(ctx, tg.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, reread.VisitedCount)
		assert.Equal(t, 1, reread.NoAnswerCount)
		require.NotNil(t, reread.LastOutcome)
		assert.Equal(t, model.OutcomeVisited, *reread.LastOutcome)

		_, err = st.SetStopOutcome(ctx, "no-stop", model.StopOutcomePatch{Outcome: model.OutcomeVisited})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("delete route removes stops", func(t *testing.T) {
		tg := newTarget(t, "d", "d st")
		rt, err := st.CreateRoute(ctx, model.RouteInput{Name: "doomed"})
		require.NoError(t, err)
		stops, err := st.ReplaceStops(ctx, rt.ID, []string{tg.ID})
		require.NoError(t, err)
		require.NoError(t, st.DeleteRoute(ctx, rt.ID))
		_, err = st.GetStop(ctx, stops[0].ID)
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = st.GetRoute(ctx, rt.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestMemoryContract(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemoryListPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := m.CreateRoute(ctx, model.RouteInput{Name: "r"})
		require.NoError(t, err)
	}
	page, next, err := m.ListRoutes(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	require.NotEmpty(t, next)
	seen := len(page)
	for next != "" {
		page, next, err = m.ListRoutes(ctx, next, 2)
		require.NoError(t, err)
		seen += len(page)
	}
	assert.Equal(t, 5, seen)
}
