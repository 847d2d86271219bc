// Package stops holds the route and stop mutations used by field reps and
// dispatchers, including the visit rollup that follows every outcome.
package stops

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"fieldcrm/internal/metrics"
	"fieldcrm/internal/model"
	"fieldcrm/internal/store"
)

// RollupResult reports the secondary projection of an outcome onto its target.
// Err is informational; the outcome itself is already stored when it is set.
type RollupResult struct {
	TargetID string `json:"targetId"`
	Applied  bool   `json:"applied"`
	Err      error  `json:"-"`
}

type Service struct {
	store store.Store
	log   logrus.FieldLogger
}

func NewService(st store.Store, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: st, log: log.WithField("component", "stops")}
}

// ReplaceStops swaps the whole stop list of a route for targetIDs, in order.
func (s *Service) ReplaceStops(ctx context.Context, routeID string, targetIDs []string) ([]model.RouteStop, error) {
	if targetIDs == nil {
		return nil, model.Invalid("targetIds", "must be an array")
	}
	for i, id := range targetIDs {
		if strings.TrimSpace(id) == "" {
			return nil, model.Invalid("targetIds", "entry %d is empty", i)
		}
	}
	return s.store.ReplaceStops(ctx, routeID, targetIDs)
}

// AppendStop adds targetID at the end of the route.
func (s *Service) AppendStop(ctx context.Context, routeID, targetID string) (model.RouteStop, error) {
	if strings.TrimSpace(targetID) == "" {
		return model.RouteStop{}, model.Invalid("targetId", "is required")
	}
	return s.store.AppendStop(ctx, routeID, targetID)
}

// RecordOutcome stores the visit outcome of a stop and then projects it onto
// the target. Only the first write decides the error; a failed projection is
// logged, counted and reported through RollupResult.
func (s *Service) RecordOutcome(ctx context.Context, stopID string, patch model.StopOutcomePatch) (model.RouteStop, RollupResult, error) {
	if err := patch.Validate(); err != nil {
		return model.RouteStop{}, RollupResult{}, err
	}
	stop, err := s.store.SetStopOutcome(ctx, stopID, patch)
	if err != nil {
		return model.RouteStop{}, RollupResult{}, err
	}
	return stop, s.ProjectRollup(ctx, stop.TargetID), nil
}

// ProjectRollup recomputes the visit counters of a target from every stop that
// references it. It is idempotent and safe to rerun after a failure.
func (s *Service) ProjectRollup(ctx context.Context, targetID string) RollupResult {
	res := RollupResult{TargetID: targetID}
	all, err := s.store.ListStopsForTarget(ctx, targetID)
	if err == nil {
		err = s.store.ApplyVisitRollup(ctx, targetID, model.RollupFromStops(all))
	}
	if err != nil {
		metrics.RollupFailures.Inc()
		s.log.WithError(err).WithField("target", targetID).Warn("visit rollup not applied")
		res.Err = err
		return res
	}
	res.Applied = true
	return res
}

func (s *Service) CreateRoute(ctx context.Context, in model.RouteInput) (model.Route, error) {
	return s.store.CreateRoute(ctx, in)
}

func (s *Service) GetRoute(ctx context.Context, id string) (model.Route, error) {
	return s.store.GetRoute(ctx, id)
}

func (s *Service) ListRoutes(ctx context.Context, cursor string, limit int) ([]model.Route, string, error) {
	return s.store.ListRoutes(ctx, cursor, limit)
}

func (s *Service) DeleteRoute(ctx context.Context, id string) error {
	return s.store.DeleteRoute(ctx, id)
}

func (s *Service) CreateTarget(ctx context.Context, in model.TargetInput) (model.Target, error) {
	return s.store.CreateTarget(ctx, in)
}

func (s *Service) GetTarget(ctx context.Context, id string) (model.Target, error) {
	return s.store.GetTarget(ctx, id)
}

func (s *Service) ListTargets(ctx context.Context, cursor string, limit int) ([]model.Target, string, error) {
	return s.store.ListTargets(ctx, cursor, limit)
}

func (s *Service) PatchTarget(ctx context.Context, id string, patch model.TargetPatch) (model.Target, error) {
	return s.store.PatchTarget(ctx, id, patch)
}
