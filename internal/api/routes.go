package api

import (
    "net/http"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "fieldcrm/internal/metrics"
)

// Mux registers every endpoint on a fresh ServeMux.
func (s *Server) Mux() *http.ServeMux {
    mux := http.NewServeMux()

    // Geocode jobs
    mux.HandleFunc("/v1/geocode/jobs", s.GeocodeJobsHandler)
    mux.HandleFunc("/v1/geocode/jobs/claim", s.GeocodeJobsHandler)
    mux.HandleFunc("/v1/geocode/results", s.GeocodeResultsHandler)
    mux.HandleFunc("/v1/geocode/failures", s.GeocodeFailuresHandler)

    // Routes and stops
    mux.HandleFunc("/v1/routes", s.RoutesIndexHandler)
    mux.HandleFunc("/v1/routes/", s.RouteByIDHandler) // includes /reorder, /stops, /geometry, /export.xlsx, /events/*
    mux.HandleFunc("/v1/stops/", s.StopByIDHandler)

    // Targets
    mux.HandleFunc("/v1/targets", s.TargetsHandler)
    mux.HandleFunc("/v1/targets/", s.TargetByIDHandler)

    // Admin
    mux.HandleFunc("/v1/admin/geocode/bulk", s.AdminBulkGeocodeHandler)
    mux.HandleFunc("/v1/admin/debug", s.DebugJSON)

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.HandleFunc("/version", s.VersionHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    return mux
}

// Handler is the full middleware stack around Mux.
func (s *Server) Handler() http.Handler {
    var h http.Handler = s.Mux()
    h = rateLimit(s.Config.Server.RateRPS, s.Config.Server.RateBurst, h)
    h = corsMiddleware(s.Config.Server.AllowOrigins, h)
    return logMiddleware(s.Log, h)
}
