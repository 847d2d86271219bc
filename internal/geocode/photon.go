package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
)

// PhotonConfig configures the Komoot Photon client.
type PhotonConfig struct {
	BaseURL string
	Lang    string
	Client  *http.Client
}

// Photon geocodes with the Photon /api endpoint, which answers in GeoJSON.
type Photon struct {
	cfg    PhotonConfig
	client *http.Client
}

func NewPhoton(cfg PhotonConfig) *Photon {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://photon.komoot.io"
	}
	return &Photon{cfg: cfg, client: defaultClient(cfg.Client, 0)}
}

func (p *Photon) Name() string { return "photon" }

func (p *Photon) Geocode(ctx context.Context, address string) (*Result, error) {
	if strings.TrimSpace(address) == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("q", address)
	q.Set("limit", "1")
	if p.cfg.Lang != "" {
		q.Set("lang", p.cfg.Lang)
	}
	var fc gjson.FeatureCollection
	err := getJSON(ctx, p.client, p.Name(), strings.TrimRight(p.cfg.BaseURL, "/")+"/api?"+q.Encode(), nil, func(r io.Reader) error {
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return fc.UnmarshalJSON(b)
	})
	if err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}
	f := fc.Features[0]
	pt, ok := f.Geometry.(*geom.Point)
	if !ok || pt.Empty() {
		return nil, fmt.Errorf("photon: expected point geometry, got %T", f.Geometry)
	}
	props := map[string]string{}
	for k, v := range f.Properties {
		if s, ok := v.(string); ok {
			props[k] = s
		}
	}
	// GeoJSON orders coordinates (lng, lat)
	return &Result{
		Latitude:          pt.Y(),
		Longitude:         pt.X(),
		NormalizedAddress: photonLabel(props),
		Components:        props,
		Accuracy:          props["type"],
	}, nil
}

func photonLabel(p map[string]string) string {
	var parts []string
	street := strings.TrimSpace(strings.Join(nonEmpty(p["housenumber"], p["street"]), " "))
	if street == "" {
		street = p["name"]
	}
	parts = append(parts, nonEmpty(street, p["city"], p["state"], p["postcode"], p["country"])...)
	return strings.Join(parts, ", ")
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
