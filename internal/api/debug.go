package api

import (
    "context"
    "net/http"
    "time"

    "fieldcrm/internal/buildinfo"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, buildinfo.Info())
}

// DebugJSON reports build info and non-secret configuration (admin only).
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    if !s.requireAdmin(w, r) { return }
    c := s.Config
    writeJSON(w, 200, map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "PORT":               c.Server.Port,
            "AUTH_MODE":          c.Auth.Mode,
            "ALLOW_ORIGINS":      c.Server.AllowOrigins,
            "RATE_RPS":           c.Server.RateRPS,
            "RATE_BURST":         c.Server.RateBurst,
            "GEOCODE_PROVIDERS":  c.Geocode.Providers,
            "GEOCODE_BATCH_SIZE": c.Geocode.BatchSize,
            "GEOCODE_SCHEDULE":   c.Geocode.Schedule,
            "HAS_DATABASE_URL":   c.Database.URL != "",
            "HAS_REDIS_URL":      c.Redis.URL != "",
            "HAS_OSRM_URL":       c.Optimizer.OSRMURL != "",
            "HAS_GEOCODE_KEY":    s.GeocodeKey != "",
        },
    })
}
