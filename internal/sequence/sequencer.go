package sequence

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fieldcrm/internal/metrics"
	"fieldcrm/internal/model"
	"fieldcrm/internal/store"
)

// ReorderResult describes the order a route ended up with.
type ReorderResult struct {
	RouteID         string         `json:"routeId"`
	Strategy        model.Strategy `json:"strategy"`
	StopIDs         []string       `json:"stopIds"`
	Changed         bool           `json:"changed"`
	DistanceBeforeM float64        `json:"distanceBeforeMeters"`
	DistanceAfterM  float64        `json:"distanceAfterMeters"`
}

// Sequencer reorders route stops and persists the new seq values in one step.
type Sequencer struct {
	store     store.Store
	optimizer Optimizer
	log       logrus.FieldLogger
}

// NewSequencer builds a Sequencer. optimizer may be nil, in which case the
// external strategy reports the optimizer as unavailable.
func NewSequencer(st store.Store, optimizer Optimizer, log logrus.FieldLogger) *Sequencer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sequencer{store: st, optimizer: optimizer, log: log.WithField("component", "sequence")}
}

func (s *Sequencer) Reorder(ctx context.Context, routeID string, strategy model.Strategy) (res ReorderResult, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.ReorderDuration.WithLabelValues(string(strategy), status).Observe(time.Since(start).Seconds())
	}()

	parsed, err := model.ParseStrategy(string(strategy))
	if err != nil {
		return ReorderResult{}, err
	}
	strategy = parsed
	rt, err := s.store.GetRoute(ctx, routeID)
	if err != nil {
		return ReorderResult{}, err
	}
	res = ReorderResult{RouteID: rt.ID, Strategy: strategy, StopIDs: rt.StopIDs()}

	points := make([]model.Point, len(rt.Stops))
	var missing []string
	for i, st := range rt.Stops {
		var ok bool
		if st.Target != nil {
			points[i], ok = st.Target.Coordinates()
		}
		if !ok {
			missing = append(missing, st.ID)
		}
	}
	if len(missing) > 0 {
		return ReorderResult{}, &model.PreconditionError{Reason: "stops without valid coordinates", StopIDs: missing}
	}
	if len(points) < 2 {
		return res, nil
	}

	var order []int
	switch strategy {
	case model.StrategyExternalOptimizer:
		order, err = s.optimize(ctx, points)
		if err != nil {
			return ReorderResult{}, err
		}
	default:
		order = NearestNeighbor(points)
	}

	res.DistanceBeforeM = PathDistance(points, identity(len(points)))
	res.DistanceAfterM = PathDistance(points, order)
	ids := make([]string, len(order))
	for pos, idx := range order {
		ids[pos] = rt.Stops[idx].ID
		if idx != pos {
			res.Changed = true
		}
	}
	if !res.Changed {
		return res, nil
	}
	stops, err := s.store.SetStopOrder(ctx, rt.ID, ids)
	if err != nil {
		return ReorderResult{}, err
	}
	res.StopIDs = make([]string, len(stops))
	for i, st := range stops {
		res.StopIDs[i] = st.ID
	}
	s.log.WithFields(logrus.Fields{
		"route":    rt.ID,
		"strategy": strategy,
		"stops":    len(ids),
		"before_m": int(res.DistanceBeforeM),
		"after_m":  int(res.DistanceAfterM),
	}).Info("route reordered")
	return res, nil
}

func (s *Sequencer) optimize(ctx context.Context, points []model.Point) ([]int, error) {
	if s.optimizer == nil {
		return nil, &model.UpstreamError{Service: "optimizer", Detail: "external optimizer is not configured"}
	}
	if len(points) == 2 {
		// source and destination are pinned, nothing to optimize
		return identity(2), nil
	}
	positions, err := s.optimizer.Trip(ctx, points)
	if err != nil {
		return nil, err
	}
	if len(positions) != len(points) {
		return nil, &model.UpstreamError{Service: "optimizer", Detail: "result size does not match stop count"}
	}
	return OrderFromPositions(positions)
}
