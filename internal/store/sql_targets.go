package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fieldcrm/internal/model"
)

const targetCols = `id, name, address_raw, address_normalized, latitude, longitude,
	geocode_status, geocode_attempts, geocode_last_error, geocode_meta, geocode_accuracy, geocoded_at,
	visited_count, no_answer_count, wrong_address_count, follow_up_count, last_outcome, last_visited_at,
	version, created_at, updated_at`

// casRetries bounds optimistic retries when a target row changes between read and write.
const casRetries = 5

func (s *SQL) CreateTarget(ctx context.Context, in model.TargetInput) (model.Target, error) {
	if err := in.Validate(); err != nil {
		return model.Target{}, err
	}
	now := s.now()
	t := model.Target{
		ID:            uuid.New().String(),
		Name:          strings.TrimSpace(in.Name),
		AddressRaw:    in.AddressRaw,
		GeocodeStatus: model.GeocodeMissing,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO targets (id, name, address_raw, geocode_status, geocode_attempts, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 1, ?, ?)`), t.ID, t.Name, t.AddressRaw, t.GeocodeStatus, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return model.Target{}, fmt.Errorf("insert target: %w", err)
	}
	return t, nil
}

func (s *SQL) GetTarget(ctx context.Context, id string) (model.Target, error) {
	var t model.Target
	err := s.db.GetContext(ctx, &t, s.q(`SELECT `+targetCols+` FROM targets WHERE id = ?`), id)
	if err != nil {
		return model.Target{}, notFound(err, "target", id)
	}
	return t, nil
}

func (s *SQL) ListTargets(ctx context.Context, cursor string, limit int) ([]model.Target, string, error) {
	limit = clampLimit(limit, 100, 500)
	out := []model.Target{}
	err := s.db.SelectContext(ctx, &out, s.q(`SELECT `+targetCols+` FROM targets WHERE id > ? ORDER BY id LIMIT ?`), cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list targets: %w", err)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *SQL) PatchTarget(ctx context.Context, id string, patch model.TargetPatch) (model.Target, error) {
	if err := patch.Validate(); err != nil {
		return model.Target{}, err
	}
	return s.mutateTarget(ctx, id, func(t model.Target) (model.Target, bool) {
		return patch.Apply(t, s.now()), true
	})
}

// ListPendingGeocode returns retry-eligible targets, least-tried first.
func (s *SQL) ListPendingGeocode(ctx context.Context, limit int) ([]model.Target, error) {
	out := []model.Target{}
	err := s.db.SelectContext(ctx, &out, s.q(`SELECT `+targetCols+` FROM targets
		WHERE geocode_status = ? AND TRIM(address_raw) <> '' AND geocode_attempts < ?
		ORDER BY geocode_attempts ASC, created_at ASC, id ASC LIMIT ?`),
		model.GeocodeMissing, model.MaxGeocodeAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending geocode: %w", err)
	}
	return out, nil
}

func (s *SQL) RecordGeocodeFailure(ctx context.Context, id string, f model.GeocodeFailure) (model.Target, error) {
	if err := f.Validate(); err != nil {
		return model.Target{}, err
	}
	return s.mutateTarget(ctx, id, func(t model.Target) (model.Target, bool) {
		return t.WithFailure(f, s.now())
	})
}

func (s *SQL) RecordGeocodeSuccess(ctx context.Context, id string, g model.GeocodeSuccess) (model.Target, error) {
	if err := g.Validate(); err != nil {
		return model.Target{}, err
	}
	return s.mutateTarget(ctx, id, func(t model.Target) (model.Target, bool) {
		return t.WithSuccess(g, s.now()), true
	})
}

func (s *SQL) ApplyVisitRollup(ctx context.Context, targetID string, r model.VisitRollup) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE targets SET visited_count = ?, no_answer_count = ?, wrong_address_count = ?,
		follow_up_count = ?, last_outcome = ?, last_visited_at = ?, version = version + 1, updated_at = ? WHERE id = ?`),
		r.VisitedCount, r.NoAnswerCount, r.WrongAddressCount, r.FollowUpCount, r.LastOutcome, r.LastVisitedAt, s.now(), targetID)
	if err != nil {
		return fmt.Errorf("update rollup: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("target", targetID)
	}
	return nil
}

// mutateTarget applies fn with a compare-and-set on version, so concurrent
// writers never lose an attempt increment.
func (s *SQL) mutateTarget(ctx context.Context, id string, fn func(model.Target) (model.Target, bool)) (model.Target, error) {
	for i := 0; i < casRetries; i++ {
		cur, err := s.GetTarget(ctx, id)
		if err != nil {
			return model.Target{}, err
		}
		next, changed := fn(cur)
		if !changed {
			return cur, nil
		}
		next.Version = cur.Version + 1
		res, err := s.db.ExecContext(ctx, s.q(`UPDATE targets SET name = ?, address_raw = ?, address_normalized = ?,
			latitude = ?, longitude = ?, geocode_status = ?, geocode_attempts = ?, geocode_last_error = ?,
			geocode_meta = ?, geocode_accuracy = ?, geocoded_at = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`),
			next.Name, next.AddressRaw, next.AddressNormalized,
			next.Latitude, next.Longitude, next.GeocodeStatus, next.GeocodeAttempts, next.GeocodeLastError,
			next.GeocodeMeta, next.GeocodeAccuracy, next.GeocodedAt, next.Version, next.UpdatedAt,
			id, cur.Version)
		if err != nil {
			return model.Target{}, fmt.Errorf("update target: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return next, nil
		}
		s.log.WithField("targetId", id).Debug("target changed concurrently; retrying")
	}
	return model.Target{}, fmt.Errorf("%w: target %s kept changing", ErrConflict, id)
}
