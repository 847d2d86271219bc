package sequence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcrm/internal/model"
	"fieldcrm/internal/store"
)

func pt(lng, lat float64) model.Point { return model.Point{Lat: lat, Lng: lng} }

func TestNearestNeighborSquarePerimeter(t *testing.T) {
	points := []model.Point{pt(0, 0), pt(1, 1), pt(0, 1), pt(1, 0)}
	assert.Equal(t, []int{0, 2, 1, 3}, NearestNeighbor(points))
}

func TestNearestNeighborKeepsFirstAndIsDeterministic(t *testing.T) {
	points := []model.Point{pt(5, 5), pt(0, 0), pt(5, 6), pt(10, 10), pt(5, 7)}
	first := NearestNeighbor(points)
	assert.Equal(t, 0, first[0])
	assert.Equal(t, []int{0, 2, 4, 3, 1}, first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, NearestNeighbor(points))
	}
	assert.Equal(t, []int{}, NearestNeighbor(nil))
	assert.Equal(t, []int{0}, NearestNeighbor([]model.Point{pt(1, 1)}))
}

func TestOrderFromPositions(t *testing.T) {
	order, err := OrderFromPositions([]int{0, 3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3, 1}, order)

	_, err = OrderFromPositions([]int{0, 0, 1})
	var ue *model.UpstreamError
	assert.ErrorAs(t, err, &ue)
}

func TestOSRMTrip(t *testing.T) {
	var path, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, query = r.URL.Path, r.URL.RawQuery
		fmt.Fprint(w, `{"code":"Ok","waypoints":[{"waypoint_index":0},{"waypoint_index":2},{"waypoint_index":1}]}`)
	}))
	defer srv.Close()

	pos, err := NewOSRM(OSRMConfig{BaseURL: srv.URL}).Trip(context.Background(), []model.Point{pt(1, 2), pt(3, 4), pt(5, 6)})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, pos)
	assert.Equal(t, "/trip/v1/driving/1.000000,2.000000;3.000000,4.000000;5.000000,6.000000", path)
	assert.Contains(t, query, "source=first")
	assert.Contains(t, query, "destination=last")
	assert.Contains(t, query, "roundtrip=false")
	assert.Contains(t, query, "overview=false")
}

func TestOSRMErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   string
	}{
		"http status":    {http.StatusBadRequest, `{"code":"InvalidQuery","message":"bad coords"}`, "bad coords"},
		"code not ok":    {http.StatusOK, `{"code":"NoTrips"}`, "NoTrips"},
		"count mismatch": {http.StatusOK, `{"code":"Ok","waypoints":[{"waypoint_index":0}]}`, "1 waypoints for 2 stops"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				fmt.Fprint(w, c.body)
			}))
			defer srv.Close()
			_, err := NewOSRM(OSRMConfig{BaseURL: srv.URL}).Trip(context.Background(), []model.Point{pt(1, 1), pt(2, 2)})
			var ue *model.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, c.status, ue.Status)
			assert.Contains(t, ue.Error(), c.want)
		})
	}
}

func TestOSRMErrorBodyTruncatedOnRuneBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, strings.Repeat("x", 255)+"ü gateway down")
	}))
	defer srv.Close()
	_, err := NewOSRM(OSRMConfig{BaseURL: srv.URL}).Trip(context.Background(), []model.Point{pt(1, 1), pt(2, 2)})
	var ue *model.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.True(t, utf8.ValidString(ue.Detail))
	assert.Equal(t, strings.Repeat("x", 255), ue.Detail)
}

type fixedOptimizer struct {
	positions []int
	err       error
}

func (f fixedOptimizer) Trip(context.Context, []model.Point) ([]int, error) { return f.positions, f.err }

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// routeWith creates a route whose stops point at targets at the given (lng, lat) positions.
// A nil position leaves the target without coordinates.
func routeWith(t *testing.T, st store.Store, positions ...*model.Point) model.Route {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, len(positions))
	for i, p := range positions {
		tg, err := st.CreateTarget(ctx, model.TargetInput{Name: fmt.Sprintf("t%d", i), AddressRaw: fmt.Sprintf("%d Main St", i)})
		require.NoError(t, err)
		if p != nil {
			_, err = st.RecordGeocodeSuccess(ctx, tg.ID, model.GeocodeSuccess{Latitude: p.Lat, Longitude: p.Lng})
			require.NoError(t, err)
		}
		ids = append(ids, tg.ID)
	}
	rt, err := st.CreateRoute(ctx, model.RouteInput{Name: "r"})
	require.NoError(t, err)
	_, err = st.ReplaceStops(ctx, rt.ID, ids)
	require.NoError(t, err)
	rt, err = st.GetRoute(ctx, rt.ID)
	require.NoError(t, err)
	return rt
}

func ptr(p model.Point) *model.Point { return &p }

func TestReorderNearestNeighbor(t *testing.T) {
	st := store.NewMemory()
	rt := routeWith(t, st, ptr(pt(0, 0)), ptr(pt(1, 1)), ptr(pt(0, 1)), ptr(pt(1, 0)))
	before := rt.StopIDs()

	res, err := NewSequencer(st, nil, quiet()).Reorder(context.Background(), rt.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.StrategyNearestNeighbor, res.Strategy)
	assert.True(t, res.Changed)
	want := []string{before[0], before[2], before[1], before[3]}
	assert.Equal(t, want, res.StopIDs)
	assert.Less(t, res.DistanceAfterM, res.DistanceBeforeM)

	got, err := st.GetRoute(context.Background(), rt.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got.StopIDs())
	for i, s := range got.Stops {
		assert.Equal(t, i+1, s.Seq)
	}
}

func TestReorderMissingCoordinatesLeavesRouteUntouched(t *testing.T) {
	st := store.NewMemory()
	rt := routeWith(t, st, ptr(pt(0, 0)), nil, ptr(pt(0, 1)), nil)
	before := rt.StopIDs()

	_, err := NewSequencer(st, nil, quiet()).Reorder(context.Background(), rt.ID, model.StrategyNearestNeighbor)
	var pe *model.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{before[1], before[3]}, pe.StopIDs)

	got, err := st.GetRoute(context.Background(), rt.ID)
	require.NoError(t, err)
	assert.Equal(t, before, got.StopIDs())
}

func TestReorderExternalOptimizer(t *testing.T) {
	st := store.NewMemory()
	rt := routeWith(t, st, ptr(pt(0, 0)), ptr(pt(3, 0)), ptr(pt(1, 0)), ptr(pt(4, 0)))
	before := rt.StopIDs()

	res, err := NewSequencer(st, fixedOptimizer{positions: []int{0, 2, 1, 3}}, quiet()).
		Reorder(context.Background(), rt.ID, model.StrategyExternalOptimizer)
	require.NoError(t, err)
	assert.Equal(t, []string{before[0], before[2], before[1], before[3]}, res.StopIDs)
}

func TestReorderOptimizerFailureWritesNothing(t *testing.T) {
	st := store.NewMemory()
	rt := routeWith(t, st, ptr(pt(0, 0)), ptr(pt(3, 0)), ptr(pt(1, 0)))
	before := rt.StopIDs()

	upstream := &model.UpstreamError{Service: "osrm", Status: 503}
	_, err := NewSequencer(st, fixedOptimizer{err: upstream}, quiet()).
		Reorder(context.Background(), rt.ID, model.StrategyExternalOptimizer)
	assert.True(t, errors.Is(err, upstream))

	_, err = NewSequencer(st, nil, quiet()).Reorder(context.Background(), rt.ID, model.StrategyExternalOptimizer)
	var ue *model.UpstreamError
	assert.ErrorAs(t, err, &ue)

	_, err = NewSequencer(st, fixedOptimizer{positions: []int{0, 1}}, quiet()).
		Reorder(context.Background(), rt.ID, model.StrategyExternalOptimizer)
	assert.ErrorAs(t, err, &ue)

	got, err := st.GetRoute(context.Background(), rt.ID)
	require.NoError(t, err)
	assert.Equal(t, before, got.StopIDs())
}

func TestReorderEdgeCases(t *testing.T) {
	st := store.NewMemory()
	seq := NewSequencer(st, nil, quiet())

	_, err := seq.Reorder(context.Background(), "nope", model.StrategyNearestNeighbor)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = seq.Reorder(context.Background(), "nope", "fastest")
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)

	empty := routeWith(t, st)
	res, err := seq.Reorder(context.Background(), empty.ID, model.StrategyNearestNeighbor)
	require.NoError(t, err)
	assert.Empty(t, res.StopIDs)
	assert.False(t, res.Changed)

	one := routeWith(t, st, ptr(pt(1, 1)))
	res, err = seq.Reorder(context.Background(), one.ID, model.StrategyExternalOptimizer)
	require.NoError(t, err)
	assert.Equal(t, one.StopIDs(), res.StopIDs)
}
