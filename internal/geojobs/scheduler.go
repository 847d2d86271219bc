package geojobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs BulkGeocode on a cron schedule inside the API process.
// A run still in progress causes the next tick to be skipped.
type Scheduler struct {
	tracker   *Tracker
	cron      *cron.Cron
	batchSize int
	delay     time.Duration
	log       logrus.FieldLogger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler(t *Tracker, spec string, batchSize int, delay time.Duration, log logrus.FieldLogger) (*Scheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cl := cron.PrintfLogger(log)
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{tracker: t, cron: c, batchSize: batchSize, delay: delay, log: log, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("geocode schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	res, err := s.tracker.BulkGeocode(s.ctx, s.batchSize, s.delay)
	if err != nil {
		s.log.WithError(err).Warn("scheduled geocode batch stopped")
		return
	}
	if res.Processed > 0 {
		s.log.WithFields(logrus.Fields{"success": res.Success, "failed": res.Failed}).Info("scheduled geocode batch")
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels an in-flight batch and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
