package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"fieldcrm/internal/model"
)

const (
	routeCols = `id, name, assigned_to, scheduled_for, created_at, updated_at`
	stopCols  = `id, route_id, target_id, seq, outcome, note, visited_at, created_at`
)

func (s *SQL) CreateRoute(ctx context.Context, in model.RouteInput) (model.Route, error) {
	if err := in.Validate(); err != nil {
		return model.Route{}, err
	}
	now := s.now()
	r := model.Route{ID: uuid.New().String(), Name: strings.TrimSpace(in.Name), AssignedTo: in.AssignedTo,
		ScheduledFor: in.ScheduledFor, Stops: []model.RouteStop{}, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO routes (id, name, assigned_to, scheduled_for, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`), r.ID, r.Name, r.AssignedTo, r.ScheduledFor, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return model.Route{}, fmt.Errorf("insert route: %w", err)
	}
	return r, nil
}

// GetRoute loads the route with its stops in seq order and each stop's target.
func (s *SQL) GetRoute(ctx context.Context, id string) (model.Route, error) {
	var r model.Route
	if err := s.db.GetContext(ctx, &r, s.q(`SELECT `+routeCols+` FROM routes WHERE id = ?`), id); err != nil {
		return model.Route{}, notFound(err, "route", id)
	}
	stops, err := selectStops(ctx, s.db, `WHERE route_id = ? ORDER BY seq`, id)
	if err != nil {
		return model.Route{}, err
	}
	if err := s.attachTargets(ctx, stops); err != nil {
		return model.Route{}, err
	}
	r.Stops = stops
	return r, nil
}

func (s *SQL) attachTargets(ctx context.Context, stops []model.RouteStop) error {
	if len(stops) == 0 {
		return nil
	}
	ids := make([]string, 0, len(stops))
	for _, st := range stops {
		ids = append(ids, st.TargetID)
	}
	query, args, err := sqlx.In(`SELECT `+targetCols+` FROM targets WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	var targets []model.Target
	if err := s.db.SelectContext(ctx, &targets, s.q(query), args...); err != nil {
		return fmt.Errorf("load stop targets: %w", err)
	}
	byID := make(map[string]model.Target, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}
	for i := range stops {
		if t, ok := byID[stops[i].TargetID]; ok {
			stops[i].Target = &t
		}
	}
	return nil
}

func (s *SQL) ListRoutes(ctx context.Context, cursor string, limit int) ([]model.Route, string, error) {
	limit = clampLimit(limit, 100, 500)
	out := []model.Route{}
	if err := s.db.SelectContext(ctx, &out, s.q(`SELECT `+routeCols+` FROM routes WHERE id > ? ORDER BY id LIMIT ?`), cursor, limit); err != nil {
		return nil, "", fmt.Errorf("list routes: %w", err)
	}
	for i := range out {
		stops, err := selectStops(ctx, s.db, `WHERE route_id = ? ORDER BY seq`, out[i].ID)
		if err != nil {
			return nil, "", err
		}
		out[i].Stops = stops
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *SQL) DeleteRoute(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM route_stops WHERE route_id = ?`), id); err != nil {
			return fmt.Errorf("delete stops: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM routes WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete route: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.NotFound("route", id)
		}
		return nil
	})
}

// ReplaceStops deletes the route's stops and recreates them with seq 1..n in one transaction.
func (s *SQL) ReplaceStops(ctx context.Context, routeID string, targetIDs []string) ([]model.RouteStop, error) {
	var out []model.RouteStop
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.lockRoute(ctx, tx, routeID); err != nil {
			return err
		}
		if err := s.checkTargets(ctx, tx, targetIDs); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM route_stops WHERE route_id = ?`), routeID); err != nil {
			return fmt.Errorf("delete stops: %w", err)
		}
		now := s.now()
		out = make([]model.RouteStop, 0, len(targetIDs))
		for i, tid := range targetIDs {
			st := model.RouteStop{ID: uuid.New().String(), RouteID: routeID, TargetID: tid, Seq: i + 1, CreatedAt: now}
			if err := insertStop(ctx, tx, st); err != nil {
				return err
			}
			out = append(out, st)
		}
		return s.touchRoute(ctx, tx, routeID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQL) AppendStop(ctx context.Context, routeID, targetID string) (model.RouteStop, error) {
	var st model.RouteStop
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.lockRoute(ctx, tx, routeID); err != nil {
			return err
		}
		var n int
		if err := tx.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM targets WHERE id = ?`), targetID); err != nil {
			return err
		}
		if n == 0 {
			return model.Invalid("targetId", "unknown target id: %s", targetID)
		}
		var max int
		if err := tx.GetContext(ctx, &max, s.q(`SELECT COALESCE(MAX(seq), 0) FROM route_stops WHERE route_id = ?`), routeID); err != nil {
			return fmt.Errorf("max seq: %w", err)
		}
		st = model.RouteStop{ID: uuid.New().String(), RouteID: routeID, TargetID: targetID, Seq: max + 1, CreatedAt: s.now()}
		if err := insertStop(ctx, tx, st); err != nil {
			return err
		}
		return s.touchRoute(ctx, tx, routeID)
	})
	return st, err
}

// SetStopOrder rewrites seq to 1..n following stopIDs. stopIDs must be exactly
// the route's current stop set; otherwise the route changed underneath the
// caller and ErrConflict is returned with nothing written.
func (s *SQL) SetStopOrder(ctx context.Context, routeID string, stopIDs []string) ([]model.RouteStop, error) {
	var out []model.RouteStop
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.lockRoute(ctx, tx, routeID); err != nil {
			return err
		}
		var current []string
		if err := tx.SelectContext(ctx, &current, s.q(`SELECT id FROM route_stops WHERE route_id = ? ORDER BY seq`), routeID); err != nil {
			return fmt.Errorf("load stop ids: %w", err)
		}
		if !sameStopSet(current, stopIDs) {
			return fmt.Errorf("%w: stop set of route %s changed", ErrConflict, routeID)
		}
		// move every row out of the 1..n range first so UNIQUE(route_id, seq) holds at each statement
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE route_stops SET seq = -seq WHERE route_id = ?`), routeID); err != nil {
			return fmt.Errorf("park seq: %w", err)
		}
		for i, id := range stopIDs {
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE route_stops SET seq = ? WHERE id = ?`), i+1, id); err != nil {
				return fmt.Errorf("assign seq: %w", err)
			}
		}
		if err := s.touchRoute(ctx, tx, routeID); err != nil {
			return err
		}
		var err error
		out, err = selectStops(ctx, tx, `WHERE route_id = ? ORDER BY seq`, routeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQL) GetStop(ctx context.Context, id string) (model.RouteStop, error) {
	var st model.RouteStop
	if err := s.db.GetContext(ctx, &st, s.q(`SELECT `+stopCols+` FROM route_stops WHERE id = ?`), id); err != nil {
		return model.RouteStop{}, notFound(err, "stop", id)
	}
	return st, nil
}

func (s *SQL) SetStopOutcome(ctx context.Context, stopID string, patch model.StopOutcomePatch) (model.RouteStop, error) {
	if err := patch.Validate(); err != nil {
		return model.RouteStop{}, err
	}
	var st model.RouteStop
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &st, s.q(`SELECT `+stopCols+` FROM route_stops WHERE id = ?`), stopID); err != nil {
			return notFound(err, "stop", stopID)
		}
		st = patch.Apply(st, s.now())
		_, err := tx.ExecContext(ctx, s.q(`UPDATE route_stops SET outcome = ?, note = ?, visited_at = ? WHERE id = ?`),
			st.Outcome, st.Note, st.VisitedAt, st.ID)
		return err
	})
	return st, err
}

func (s *SQL) ListStopsForTarget(ctx context.Context, targetID string) ([]model.RouteStop, error) {
	return selectStops(ctx, s.db, `WHERE target_id = ? ORDER BY created_at, id`, targetID)
}

// lockRoute checks the route exists. On Postgres the row lock serializes
// concurrent stop rewrites of the same route.
func (s *SQL) lockRoute(ctx context.Context, tx *sqlx.Tx, routeID string) error {
	query := `SELECT id FROM routes WHERE id = ?`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var id string
	if err := tx.GetContext(ctx, &id, s.q(query), routeID); err != nil {
		return notFound(err, "route", routeID)
	}
	return nil
}

func (s *SQL) touchRoute(ctx context.Context, tx *sqlx.Tx, routeID string) error {
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE routes SET updated_at = ? WHERE id = ?`), s.now(), routeID); err != nil {
		return fmt.Errorf("touch route: %w", err)
	}
	return nil
}

func (s *SQL) checkTargets(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`SELECT id FROM targets WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	var found []string
	if err := tx.SelectContext(ctx, &found, s.q(query), args...); err != nil {
		return fmt.Errorf("check targets: %w", err)
	}
	known := make(map[string]bool, len(found))
	for _, id := range found {
		known[id] = true
	}
	return missingTargets(ids, func(id string) bool { return known[id] })
}

func insertStop(ctx context.Context, tx *sqlx.Tx, st model.RouteStop) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO route_stops (id, route_id, target_id, seq, created_at) VALUES (?, ?, ?, ?, ?)`),
		st.ID, st.RouteID, st.TargetID, st.Seq, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert stop: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func selectStops(ctx context.Context, q queryer, where string, args ...any) ([]model.RouteStop, error) {
	out := []model.RouteStop{}
	if err := sqlx.SelectContext(ctx, q, &out, q.Rebind(`SELECT `+stopCols+` FROM route_stops `+where), args...); err != nil {
		return nil, fmt.Errorf("select stops: %w", err)
	}
	return out, nil
}
