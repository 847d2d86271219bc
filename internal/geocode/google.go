package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// GoogleConfig configures the Google Maps Geocoding API client.
type GoogleConfig struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// Google geocodes with the Google Maps Geocoding API. It is skipped by the
// chain builder when no API key is configured.
type Google struct {
	cfg    GoogleConfig
	client *http.Client
}

func NewGoogle(cfg GoogleConfig) *Google {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://maps.googleapis.com/maps/api/geocode/json"
	}
	return &Google{cfg: cfg, client: defaultClient(cfg.Client, 0)}
}

func (g *Google) Name() string { return "google" }

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

func (g *Google) Geocode(ctx context.Context, address string) (*Result, error) {
	if strings.TrimSpace(address) == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.cfg.APIKey)
	var body googleResponse
	err := getJSON(ctx, g.client, g.Name(), g.cfg.BaseURL+"?"+q.Encode(), nil, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&body)
	})
	if err != nil {
		return nil, err
	}
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("google: status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return nil, nil
	}
	top := body.Results[0]
	comps := map[string]string{}
	for _, c := range top.AddressComponents {
		if len(c.Types) > 0 {
			comps[c.Types[0]] = c.ShortName
		}
	}
	return &Result{
		Latitude:          top.Geometry.Location.Lat,
		Longitude:         top.Geometry.Location.Lng,
		NormalizedAddress: top.FormattedAddress,
		Components:        comps,
		Accuracy:          strings.ToLower(top.Geometry.LocationType),
	}, nil
}
