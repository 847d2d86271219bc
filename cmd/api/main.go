package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"

    "fieldcrm/internal/api"
    "fieldcrm/internal/app"
    "fieldcrm/internal/buildinfo"
    "fieldcrm/internal/config"
    "fieldcrm/internal/geojobs"
    "fieldcrm/internal/logging"
    "fieldcrm/internal/metrics"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        logrus.WithError(err).Fatal("load config")
    }
    log := logging.New(cfg.Logging)
    log.WithField("version", buildinfo.String()).Info("starting fieldcrm api")

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    a, err := app.Build(ctx, cfg, log)
    if err != nil {
        log.WithError(err).Fatal("failed to init services")
    }
    defer func() { _ = a.Close() }()

    metrics.RegisterDefault()

    var broker api.EventBroker = api.NewBroker()
    if a.Redis != nil {
        broker = api.NewRedisBroker(a.Redis, log)
    }
    srvDeps := api.NewServer(api.Deps{
        Store:     a.Store,
        Tracker:   a.Tracker,
        Sequencer: a.Sequencer,
        Broker:    broker,
        Log:       log,
        Config:    cfg,
    })

    // Embedded batch geocoder
    var sched *geojobs.Scheduler
    if cfg.Geocode.Schedule != "" {
        sched, err = geojobs.NewScheduler(a.Tracker, cfg.Geocode.Schedule, cfg.Geocode.BatchSize, cfg.Geocode.Delay, log)
        if err != nil {
            log.WithError(err).Fatal("invalid GEOCODE_SCHEDULE")
        }
        sched.Start()
        log.WithField("schedule", cfg.Geocode.Schedule).Info("geocode scheduler started")
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           srvDeps.Handler(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    errCh := make(chan error, 1)
    go func() {
        log.WithField("addr", srv.Addr).Info("API listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
        close(errCh)
    }()

    select {
    case <-ctx.Done():
        log.Info("shutting down")
    case err := <-errCh:
        if err != nil {
            log.WithError(err).Error("server error")
        }
    }

    if sched != nil {
        sched.Stop()
    }
    shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.WithError(err).Warn("graceful shutdown incomplete")
    }
}
