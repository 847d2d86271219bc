package sequence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"fieldcrm/internal/model"
)

// Optimizer computes a visiting order externally. Trip returns, for each input
// index, the position that point takes in the optimized trip.
type Optimizer interface {
	Trip(ctx context.Context, points []model.Point) ([]int, error)
}

// OSRMConfig points at an OSRM routing server.
type OSRMConfig struct {
	BaseURL string
	Profile string
	Timeout time.Duration
	Client  *http.Client
}

// OSRM calls the OSRM /trip service with the first and last stops pinned.
type OSRM struct {
	cfg    OSRMConfig
	client *http.Client
}

func NewOSRM(cfg OSRMConfig) *OSRM {
	if cfg.Profile == "" {
		cfg.Profile = "driving"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := cfg.Client
	if c == nil {
		c = &http.Client{Timeout: cfg.Timeout}
	}
	return &OSRM{cfg: cfg, client: c}
}

type osrmTripResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Waypoints []struct {
		WaypointIndex int `json:"waypoint_index"`
		TripsIndex    int `json:"trips_index"`
	} `json:"waypoints"`
}

func (o *OSRM) Trip(ctx context.Context, points []model.Point) ([]int, error) {
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
	}
	u := fmt.Sprintf("%s/trip/v1/%s/%s?source=first&destination=last&roundtrip=false&overview=false",
		strings.TrimRight(o.cfg.BaseURL, "/"), o.cfg.Profile, strings.Join(coords, ";"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &model.UpstreamError{Service: "osrm", Err: err}
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &model.UpstreamError{Service: "osrm", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &model.UpstreamError{Service: "osrm", Status: resp.StatusCode, Err: err}
	}
	var out osrmTripResponse
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := out.Message
		if detail == "" {
			detail = model.TruncateUTF8(string(body), 256)
		}
		return nil, &model.UpstreamError{Service: "osrm", Status: resp.StatusCode, Detail: detail}
	}
	if decodeErr != nil {
		return nil, &model.UpstreamError{Service: "osrm", Status: resp.StatusCode, Detail: "malformed response", Err: decodeErr}
	}
	if out.Code != "Ok" {
		return nil, &model.UpstreamError{Service: "osrm", Status: resp.StatusCode, Detail: strings.TrimSpace(out.Code + " " + out.Message)}
	}
	if len(out.Waypoints) != len(points) {
		return nil, &model.UpstreamError{Service: "osrm", Status: resp.StatusCode,
			Detail: fmt.Sprintf("returned %d waypoints for %d stops", len(out.Waypoints), len(points))}
	}
	positions := make([]int, len(out.Waypoints))
	for i, w := range out.Waypoints {
		positions[i] = w.WaypointIndex
	}
	return positions, nil
}

// OrderFromPositions turns per-index trip positions into a visiting order:
// input indices sorted by their position. positions must be a permutation of 0..n-1.
func OrderFromPositions(positions []int) ([]int, error) {
	n := len(positions)
	seen := make([]bool, n)
	for _, p := range positions {
		if p < 0 || p >= n || seen[p] {
			return nil, &model.UpstreamError{Service: "osrm", Detail: fmt.Sprintf("waypoint positions are not a permutation: %v", positions)}
		}
		seen[p] = true
	}
	order := identity(n)
	sort.SliceStable(order, func(i, j int) bool { return positions[order[i]] < positions[order[j]] })
	return order, nil
}
