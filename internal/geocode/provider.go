package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fieldcrm/internal/metrics"
	"fieldcrm/internal/model"
)

// Result is a provider answer in the shape every provider is normalized to.
type Result struct {
	Latitude          float64           `json:"latitude"`
	Longitude         float64           `json:"longitude"`
	NormalizedAddress string            `json:"normalizedAddress,omitempty"`
	Components        map[string]string `json:"components,omitempty"`
	Accuracy          string            `json:"accuracy,omitempty"`
	Provider          string            `json:"provider"`
}

// Provider is one external geocoding backend. A miss is (nil, nil); an error
// means the provider could not be asked.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Attempt records what one provider did for a lookup.
type Attempt struct {
	Provider string `json:"provider"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

const (
	outcomeOK      = "ok"
	outcomeEmpty   = "empty"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

// Lookup is the folded answer of a Geocoder: a usable result or nothing, plus diagnostics.
type Lookup struct {
	Result   *Result
	Attempts []Attempt
}

func (l Lookup) Found() bool { return l.Result != nil }

// Geocoder resolves addresses. Implementations never return transport errors;
// every failure mode collapses into a Lookup without a Result.
type Geocoder interface {
	Geocode(ctx context.Context, address string) Lookup
}

// Chain tries providers in a fixed priority order and returns the first valid result.
type Chain struct {
	providers []Provider
	log       logrus.FieldLogger
}

func NewChain(log logrus.FieldLogger, providers ...Provider) *Chain {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Chain{providers: providers, log: log}
}

// Providers lists provider names in the order they are tried.
func (c *Chain) Providers() []string {
	out := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p.Name())
	}
	return out
}

func (c *Chain) Geocode(ctx context.Context, address string) Lookup {
	var l Lookup
	for _, p := range c.providers {
		if ctx.Err() != nil {
			l.Attempts = append(l.Attempts, Attempt{Provider: p.Name(), Outcome: outcomeError, Error: ctx.Err().Error()})
			break
		}
		res, err := p.Geocode(ctx, address)
		a := Attempt{Provider: p.Name()}
		switch {
		case err != nil:
			a.Outcome, a.Error = outcomeError, err.Error()
			c.log.WithError(err).WithField("provider", p.Name()).Warn("geocode provider failed")
		case res == nil:
			a.Outcome = outcomeEmpty
		case !Valid(res):
			a.Outcome = outcomeInvalid
			a.Error = fmt.Sprintf("unusable coordinates (%v, %v)", res.Latitude, res.Longitude)
		default:
			a.Outcome = outcomeOK
		}
		metrics.GeocodeRequests.WithLabelValues(p.Name(), a.Outcome).Inc()
		l.Attempts = append(l.Attempts, a)
		if a.Outcome == outcomeOK {
			res.Provider = p.Name()
			l.Result = res
			return l
		}
	}
	return l
}

// Valid reports whether a result carries finite, in-range, non-placeholder coordinates.
func Valid(r *Result) bool {
	return r != nil && model.Point{Lat: r.Latitude, Lng: r.Longitude}.Usable()
}

// statusError is returned for non-2xx provider responses.
type statusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
}

// getJSON issues a GET and hands a 2xx body to decode.
func getJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, decode func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Provider: provider, Status: resp.StatusCode, Body: strings.ToValidUTF8(string(b), "")}
	}
	if err := decode(io.LimitReader(resp.Body, 4<<20)); err != nil {
		return fmt.Errorf("%s: decode: %w", provider, err)
	}
	return nil
}

func defaultClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// IsStatus reports whether err is a provider status error with the given code.
func IsStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status == code
}
