// Package app assembles the service graph shared by the API server and the
// fieldctl command: store, Redis, geocoder chain, optimizer and job tracker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"fieldcrm/internal/config"
	"fieldcrm/internal/geocode"
	"fieldcrm/internal/geojobs"
	"fieldcrm/internal/sequence"
	"fieldcrm/internal/store"
)

// App holds the long-lived collaborators built from a Config.
type App struct {
	Config    config.Config
	Log       logrus.FieldLogger
	Store     store.Store
	Redis     *redis.Client
	Geocoder  geocode.Geocoder
	Optimizer sequence.Optimizer
	Tracker   *geojobs.Tracker
	Sequencer *sequence.Sequencer

	closers []func() error
}

// Build connects the configured backends. Without DATABASE_URL the in-memory
// store is used; without REDIS_URL the geocode cache and event fan-out stay
// in process.
func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	chain, err := NewGeocoderChain(cfg.Geocode, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	var rdb redis.Cmdable
	if a.Redis != nil {
		rdb = a.Redis
	}
	cached := geocode.NewCached(chain, rdb, cfg.Redis.CacheTTL, log)
	if cfg.Geocode.Timeout > 0 {
		// up to three providers, each bounded by Timeout, plus rate limiter waits
		cached.LookupTimeout = 4 * cfg.Geocode.Timeout
	}
	a.Geocoder = cached
	if cfg.Optimizer.OSRMURL != "" {
		a.Optimizer = sequence.NewOSRM(sequence.OSRMConfig{
			BaseURL: cfg.Optimizer.OSRMURL,
			Profile: cfg.Optimizer.Profile,
			Timeout: cfg.Optimizer.Timeout,
		})
	}
	a.Tracker = geojobs.NewTracker(a.Store, a.Geocoder, log)
	a.Sequencer = sequence.NewSequencer(a.Store, a.Optimizer, log)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	url := a.Config.Database.URL
	if url == "" {
		a.Log.Info("DATABASE_URL not set, using in-memory store")
		a.Store = store.NewMemory()
		return nil
	}
	driver, dsn := store.DriverForURL(url)
	var (
		st  *store.SQL
		err error
	)
	if driver == store.DriverSQLite {
		st, err = store.NewSQLite(ctx, dsn, a.Log)
	} else {
		st, err = store.NewPostgres(ctx, dsn, a.Log)
	}
	if err != nil {
		return err
	}
	a.closers = append(a.closers, st.Close)
	if a.Config.Database.Migrate {
		if err := st.Migrate(); err != nil {
			_ = st.Close()
			return err
		}
	}
	a.Store = st
	a.Log.WithField("driver", driver).Info("store connected")
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	if a.Config.Redis.URL == "" {
		return nil
	}
	opt, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, rdb.Close)
	return nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewGeocoderChain builds providers in the configured priority order. Google
// is skipped when no API key is set; unknown names are rejected.
func NewGeocoderChain(cfg config.GeocodeConfig, log logrus.FieldLogger) (*geocode.Chain, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	var providers []geocode.Provider
	for _, name := range cfg.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "nominatim":
			providers = append(providers, geocode.NewNominatim(geocode.NominatimConfig{
				BaseURL:   cfg.NominatimURL,
				UserAgent: cfg.UserAgent,
				Email:     cfg.NominatimEmail,
				MinDelay:  cfg.NominatimMinDelay,
				Client:    client,
			}))
		case "photon":
			providers = append(providers, geocode.NewPhoton(geocode.PhotonConfig{BaseURL: cfg.PhotonURL, Client: client}))
		case "google":
			if cfg.GoogleAPIKey == "" {
				log.Info("GEOCODE_GOOGLE_API_KEY not set, skipping google provider")
				continue
			}
			providers = append(providers, geocode.NewGoogle(geocode.GoogleConfig{APIKey: cfg.GoogleAPIKey, Client: client}))
		case "":
		default:
			return nil, fmt.Errorf("unknown geocode provider %q", name)
		}
	}
	chain := geocode.NewChain(log, providers...)
	log.WithField("providers", chain.Providers()).Info("geocoder chain ready")
	return chain, nil
}
