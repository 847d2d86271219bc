package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// NominatimConfig configures the OpenStreetMap Nominatim search client.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Email     string
	// MinDelay is the minimum spacing between requests; the public instance asks for one per second.
	MinDelay time.Duration
	Client   *http.Client
}

// Nominatim geocodes with the Nominatim /search endpoint.
type Nominatim struct {
	cfg     NominatimConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewNominatim(cfg NominatimConfig) *Nominatim {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "fieldcrm-geocoder/1.0"
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinDelay > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.MinDelay), 1)
	}
	return &Nominatim{cfg: cfg, client: defaultClient(cfg.Client, 0), limiter: lim}
}

func (n *Nominatim) Name() string { return "nominatim" }

type nominatimPlace struct {
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Category    string            `json:"category"`
	Type        string            `json:"type"`
	AddressType string            `json:"addresstype"`
	Address     map[string]string `json:"address"`
}

func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	if strings.TrimSpace(address) == "" {
		return nil, nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("nominatim: %w", err)
	}
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	q.Set("addressdetails", "1")
	if n.cfg.Email != "" {
		q.Set("email", n.cfg.Email)
	}
	h := http.Header{}
	h.Set("User-Agent", n.cfg.UserAgent)
	var places []nominatimPlace
	err := getJSON(ctx, n.client, n.Name(), strings.TrimRight(n.cfg.BaseURL, "/")+"/search?"+q.Encode(), h, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&places)
	})
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, nil
	}
	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: bad lat %q", p.Lat)
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: bad lon %q", p.Lon)
	}
	acc := p.AddressType
	if acc == "" {
		acc = p.Type
	}
	return &Result{
		Latitude:          lat,
		Longitude:         lng,
		NormalizedAddress: p.DisplayName,
		Components:        p.Address,
		Accuracy:          acc,
	}, nil
}
