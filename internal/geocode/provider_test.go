package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	res   *Result
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Geocode(_ context.Context, _ string) (*Result, error) {
	s.calls++
	return s.res, s.err
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestChainFallsThroughToFirstValid(t *testing.T) {
	broken := &stubProvider{name: "broken", err: errors.New("boom")}
	empty := &stubProvider{name: "empty"}
	zero := &stubProvider{name: "zero", res: &Result{Latitude: 0, Longitude: 0}}
	good := &stubProvider{name: "good", res: &Result{Latitude: 39.8, Longitude: -89.6}}
	unused := &stubProvider{name: "unused", res: &Result{Latitude: 1, Longitude: 1}}

	c := NewChain(quietLog(), broken, empty, zero, good, unused)
	l := c.Geocode(context.Background(), "1 Main St")
	require.True(t, l.Found())
	assert.Equal(t, "good", l.Result.Provider)
	assert.Equal(t, 0, unused.calls)
	require.Len(t, l.Attempts, 4)
	assert.Equal(t, []string{outcomeError, outcomeEmpty, outcomeInvalid, outcomeOK},
		[]string{l.Attempts[0].Outcome, l.Attempts[1].Outcome, l.Attempts[2].Outcome, l.Attempts[3].Outcome})
	assert.Equal(t, []string{"broken", "empty", "zero", "good", "unused"}, c.Providers())
}

func TestChainExhaustedIsNotFound(t *testing.T) {
	c := NewChain(quietLog(),
		&stubProvider{name: "a", res: &Result{Latitude: 91, Longitude: 10}},
		&stubProvider{name: "b", err: errors.New("timeout")},
	)
	l := c.Geocode(context.Background(), "nowhere")
	assert.False(t, l.Found())
	assert.Len(t, l.Attempts, 2)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	p := &stubProvider{name: "a", res: &Result{Latitude: 1, Longitude: 1}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewChain(quietLog(), p).Geocode(ctx, "x")
	assert.False(t, l.Found())
	assert.Equal(t, 0, p.calls)
}

func TestNominatim(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		if r.URL.Query().Get("q") == "nothing" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[{"lat":"39.7817","lon":"-89.6501","display_name":"Springfield, IL","addresstype":"house","address":{"city":"Springfield"}}]`)
	}))
	defer srv.Close()

	n := NewNominatim(NominatimConfig{BaseURL: srv.URL, UserAgent: "test-agent"})
	r, err := n.Geocode(context.Background(), "123 Main St")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.InDelta(t, 39.7817, r.Latitude, 1e-9)
	assert.InDelta(t, -89.6501, r.Longitude, 1e-9)
	assert.Equal(t, "house", r.Accuracy)
	assert.Equal(t, "Springfield", r.Components["city"])
	assert.Equal(t, "test-agent", ua)

	r, err = n.Geocode(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestNominatimThrottles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()
	n := NewNominatim(NominatimConfig{BaseURL: srv.URL, MinDelay: 50 * time.Millisecond})
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := n.Geocode(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestNominatimUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := NewNominatim(NominatimConfig{BaseURL: srv.URL}).Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
}

func TestPhoton(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		fmt.Fprint(w, `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[-89.6501,39.7817]},"properties":{"housenumber":"123","street":"Main St","city":"Springfield","state":"Illinois","type":"house"}}]}`)
	}))
	defer srv.Close()

	r, err := NewPhoton(PhotonConfig{BaseURL: srv.URL}).Geocode(context.Background(), "123 Main St")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.InDelta(t, 39.7817, r.Latitude, 1e-9)
	assert.InDelta(t, -89.6501, r.Longitude, 1e-9)
	assert.Equal(t, "123 Main St, Springfield, Illinois", r.NormalizedAddress)
	assert.Equal(t, "house", r.Accuracy)
}

func TestPhotonNoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"FeatureCollection","features":[]}`)
	}))
	defer srv.Close()
	r, err := NewPhoton(PhotonConfig{BaseURL: srv.URL}).Geocode(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestGoogle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		switch r.URL.Query().Get("address") {
		case "none":
			fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
		case "denied":
			fmt.Fprint(w, `{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`)
		default:
			fmt.Fprint(w, `{"status":"OK","results":[{"formatted_address":"123 Main St, Springfield, IL 62701, USA","geometry":{"location":{"lat":39.78,"lng":-89.65},"location_type":"ROOFTOP"},"address_components":[{"long_name":"Illinois","short_name":"IL","types":["administrative_area_level_1","political"]}]}]}`)
		}
	}))
	defer srv.Close()
	g := NewGoogle(GoogleConfig{BaseURL: srv.URL, APIKey: "secret"})

	r, err := g.Geocode(context.Background(), "123 Main St")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "rooftop", r.Accuracy)
	assert.Equal(t, "IL", r.Components["administrative_area_level_1"])

	r, err = g.Geocode(context.Background(), "none")
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = g.Geocode(context.Background(), "denied")
	assert.ErrorContains(t, err, "REQUEST_DENIED")
}

type countingGeocoder struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (c *countingGeocoder) Geocode(_ context.Context, _ string) Lookup {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return Lookup{Result: &Result{Latitude: 10, Longitude: 20, Provider: "stub"}}
}

func TestCachedCoalescesConcurrentLookups(t *testing.T) {
	inner := &countingGeocoder{gate: make(chan struct{})}
	c := NewCached(inner, nil, 0, quietLog())

	var wg sync.WaitGroup
	results := make([]Lookup, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Geocode(context.Background(), "1 Main St")
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(inner.gate)
	wg.Wait()

	assert.LessOrEqual(t, inner.calls.Load(), int32(8))
	assert.GreaterOrEqual(t, inner.calls.Load(), int32(1))
	for _, r := range results {
		assert.True(t, r.Found())
	}
}

// ctxGeocoder blocks until released and reports whether its context was
// still live at that point.
type ctxGeocoder struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *ctxGeocoder) Geocode(ctx context.Context, _ string) Lookup {
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return Lookup{Attempts: []Attempt{{Provider: "stub", Outcome: outcomeError, Error: err.Error()}}}
	}
	return Lookup{Result: &Result{Latitude: 10, Longitude: 20, Provider: "stub"}}
}

func TestCachedSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	inner := &ctxGeocoder{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCached(inner, nil, 0, quietLog())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan Lookup, 1)
	go func() { first <- c.Geocode(ctx, "1 Main St") }()
	<-inner.started

	second := make(chan Lookup, 1)
	go func() { second <- c.Geocode(context.Background(), "1 Main St") }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case l := <-first:
		assert.False(t, l.Found())
		require.Len(t, l.Attempts, 1)
		assert.Equal(t, "cache", l.Attempts[0].Provider)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(inner.release)
	select {
	case l := <-second:
		assert.True(t, l.Found())
	case <-time.After(time.Second):
		t.Fatal("waiter did not get the shared result")
	}
}

func TestCacheKeyIgnoresCase(t *testing.T) {
	c := NewCached(&countingGeocoder{}, nil, 0, nil)
	assert.Equal(t, c.CacheKey("1 Main St"), c.CacheKey("  1 MAIN st "))
	assert.NotEqual(t, c.CacheKey("1 Main St"), c.CacheKey("2 Main St"))
}
