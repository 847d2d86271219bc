package api

import (
    "github.com/sirupsen/logrus"

    "fieldcrm/internal/auth"
    "fieldcrm/internal/config"
    "fieldcrm/internal/geojobs"
    "fieldcrm/internal/sequence"
    "fieldcrm/internal/stops"
    "fieldcrm/internal/store"
)

type Server struct {
    Store     store.Store
    Tracker   *geojobs.Tracker
    Sequencer *sequence.Sequencer
    Stops     *stops.Service
    Auth      *auth.Verifier
    Broker    EventBroker
    Log       logrus.FieldLogger
    Config    config.Config
    // GeocodeKey is the shared secret external geocoding workers send in X-Geocode-Key.
    GeocodeKey string
}

// Deps are the collaborators a Server is built from.
type Deps struct {
    Store     store.Store
    Tracker   *geojobs.Tracker
    Sequencer *sequence.Sequencer
    Broker    EventBroker
    Log       logrus.FieldLogger
    Config    config.Config
}

// NewServer wires handlers over deps. Missing pieces fall back to in-memory
// or no-op implementations so handlers can be exercised in isolation.
func NewServer(d Deps) *Server {
    log := d.Log
    if log == nil { log = logrus.StandardLogger() }
    st := d.Store
    if st == nil { st = store.NewMemory() }
    tr := d.Tracker
    if tr == nil { tr = geojobs.NewTracker(st, nil, log) }
    seq := d.Sequencer
    if seq == nil { seq = sequence.NewSequencer(st, nil, log) }
    broker := d.Broker
    if broker == nil { broker = NewBroker() }
    return &Server{
        Store:      st,
        Tracker:    tr,
        Sequencer:  seq,
        Stops:      stops.NewService(st, log),
        Auth:       auth.NewVerifier(d.Config.Auth),
        Broker:     broker,
        Log:        log,
        GeocodeKey: d.Config.Auth.GeocodeKey,
        Config:     d.Config,
    }
}
