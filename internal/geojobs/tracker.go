// Package geojobs tracks per-target geocoding attempts and drives batch
// geocoding through the provider chain.
package geojobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fieldcrm/internal/geocode"
	"fieldcrm/internal/metrics"
	"fieldcrm/internal/model"
	"fieldcrm/internal/store"
)

const (
	DefaultJobLimit = 20
	MaxJobLimit     = 100
)

// Tracker owns the geocode job lifecycle of targets: missing until geocoded,
// or failed after MaxGeocodeAttempts recorded failures.
type Tracker struct {
	store    store.Store
	geocoder geocode.Geocoder
	log      logrus.FieldLogger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewTracker(st store.Store, g geocode.Geocoder, log logrus.FieldLogger) *Tracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{store: st, geocoder: g, log: log.WithField("component", "geojobs"), sleep: sleepCtx}
}

// ListPendingJobs returns targets still eligible for geocoding, fewest attempts first.
func (t *Tracker) ListPendingJobs(ctx context.Context, limit int) ([]model.GeocodeJob, error) {
	if limit <= 0 {
		limit = DefaultJobLimit
	}
	if limit > MaxJobLimit {
		limit = MaxJobLimit
	}
	targets, err := t.store.ListPendingGeocode(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending geocode: %w", err)
	}
	jobs := make([]model.GeocodeJob, 0, len(targets))
	for _, tg := range targets {
		jobs = append(jobs, model.GeocodeJob{
			ID:                    tg.ID,
			AddressText:           tg.AddressRaw,
			NormalizedAddressText: tg.AddressNormalized,
			AttemptsSoFar:         tg.GeocodeAttempts,
		})
	}
	return jobs, nil
}

// RecordFailure counts one failed attempt. Targets that are already geocoded
// or failed are returned unchanged.
func (t *Tracker) RecordFailure(ctx context.Context, id string, f model.GeocodeFailure) (model.Target, error) {
	before, err := t.store.GetTarget(ctx, id)
	if err != nil {
		return model.Target{}, err
	}
	after, err := t.store.RecordGeocodeFailure(ctx, id, f)
	if err != nil {
		return model.Target{}, err
	}
	switch {
	case before.GeocodeStatus != model.GeocodeMissing:
		metrics.GeocodeResults.WithLabelValues("noop").Inc()
	case after.GeocodeStatus == model.GeocodeFailed:
		metrics.GeocodeResults.WithLabelValues("failure").Inc()
		t.log.WithFields(logrus.Fields{"target": id, "attempts": after.GeocodeAttempts}).Warn("geocoding gave up")
	default:
		metrics.GeocodeResults.WithLabelValues("failure").Inc()
	}
	return after, nil
}

// RecordSuccess stores coordinates after validating them; invalid input leaves the target untouched.
func (t *Tracker) RecordSuccess(ctx context.Context, id string, s model.GeocodeSuccess) (model.Target, error) {
	if err := s.Validate(); err != nil {
		return model.Target{}, err
	}
	out, err := t.store.RecordGeocodeSuccess(ctx, id, s)
	if err != nil {
		return model.Target{}, err
	}
	metrics.GeocodeResults.WithLabelValues("success").Inc()
	return out, nil
}

// BatchResult summarizes one BulkGeocode run.
type BatchResult struct {
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Processed int `json:"processed"`
}

// BulkGeocode geocodes up to batchSize pending targets one at a time, waiting
// delay between provider lookups. Per-job errors are counted as failures and
// never abort the batch; only context cancellation stops it early.
func (t *Tracker) BulkGeocode(ctx context.Context, batchSize int, delay time.Duration) (BatchResult, error) {
	var res BatchResult
	if t.geocoder == nil {
		return res, &model.UpstreamError{Service: "geocoder", Detail: "no geocoding providers configured"}
	}
	jobs, err := t.ListPendingJobs(ctx, batchSize)
	if err != nil {
		return res, err
	}
	start := time.Now()
	for i, job := range jobs {
		if i > 0 && delay > 0 {
			if err := t.sleep(ctx, delay); err != nil {
				return res, err
			}
		}
		if t.geocodeOne(ctx, job) {
			res.Success++
		} else {
			res.Failed++
		}
		res.Processed++
	}
	t.log.WithFields(logrus.Fields{
		"success":  res.Success,
		"failed":   res.Failed,
		"duration": time.Since(start).String(),
	}).Info("bulk geocode finished")
	return res, nil
}

func (t *Tracker) geocodeOne(ctx context.Context, job model.GeocodeJob) bool {
	log := t.log.WithField("target", job.ID)
	normalized := geocode.Normalize(job.AddressText)
	query := normalized
	if query == "" {
		query = job.AddressText
	}
	lookup := t.geocoder.Geocode(ctx, query)
	meta := model.Metadata{"attempts": attemptsMeta(lookup.Attempts)}
	if !lookup.Found() {
		msg := "no provider returned a usable result"
		if d := attemptErrors(lookup.Attempts); d != "" {
			msg += ": " + d
		}
		if _, err := t.RecordFailure(ctx, job.ID, model.GeocodeFailure{Error: msg, Meta: meta}); err != nil {
			log.WithError(err).Error("record geocode failure")
		}
		return false
	}
	r := lookup.Result
	meta["provider"] = r.Provider
	if r.NormalizedAddress != "" {
		meta["formattedAddress"] = r.NormalizedAddress
	}
	s := model.GeocodeSuccess{Latitude: r.Latitude, Longitude: r.Longitude, Meta: meta}
	if r.Accuracy != "" {
		acc := r.Accuracy
		s.Accuracy = &acc
	}
	if normalized != "" {
		s.NormalizedAddress = &normalized
	}
	if _, err := t.RecordSuccess(ctx, job.ID, s); err != nil {
		log.WithError(err).Error("record geocode success")
		return false
	}
	log.WithField("provider", r.Provider).Debug("geocoded")
	return true
}

func attemptsMeta(as []geocode.Attempt) []any {
	out := make([]any, 0, len(as))
	for _, a := range as {
		m := map[string]any{"provider": a.Provider, "outcome": a.Outcome}
		if a.Error != "" {
			m["error"] = a.Error
		}
		out = append(out, m)
	}
	return out
}

func attemptErrors(as []geocode.Attempt) string {
	var parts []string
	for _, a := range as {
		if a.Error != "" {
			parts = append(parts, a.Provider+": "+a.Error)
		}
	}
	return strings.Join(parts, "; ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}
