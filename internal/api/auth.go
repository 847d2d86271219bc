// Package api implements the HTTP handlers for route sequencing, stop outcomes
// and geocode job tracking.
package api

import (
    "crypto/subtle"
    "net/http"
    "strings"

    "fieldcrm/internal/auth"
)

// getPrincipal extracts the caller from a bearer token, or from dev headers
// (X-User-Id, X-Role) when the verifier runs in dev mode. ok is false when no
// acceptable identity was presented.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, bool) {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil { return pr, true }
        return auth.Principal{}, false
    }
    if s.Auth != nil && s.Auth.Mode != "dev" { return auth.Principal{}, false }
    user := r.Header.Get("X-User-Id")
    role := strings.ToLower(r.Header.Get("X-Role"))
    if user == "" { user = "dev-user" }
    if role == "" { role = auth.RoleAdmin }
    return auth.Principal{UserID: user, Role: role}, true
}

// requirePrincipal writes 401 and returns ok=false when the caller is anonymous.
func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
    pr, ok := s.getPrincipal(r)
    if !ok { writeProblem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required", r.URL.Path) }
    return pr, ok
}

// requireDispatcher also rejects callers that may not restructure routes.
func (s *Server) requireDispatcher(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
    pr, ok := s.requirePrincipal(w, r)
    if !ok { return pr, false }
    if !pr.CanDispatch() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
        return pr, false
    }
    return pr, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
    pr, ok := s.requirePrincipal(w, r)
    if !ok { return false }
    if !pr.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
        return false
    }
    return true
}

// requireGeocodeWorker authenticates the external geocoding worker by shared
// secret. Without a configured secret only admins may use the job endpoints.
func (s *Server) requireGeocodeWorker(w http.ResponseWriter, r *http.Request) bool {
    if s.GeocodeKey == "" { return s.requireAdmin(w, r) }
    got := r.Header.Get("X-Geocode-Key")
    if subtle.ConstantTimeCompare([]byte(got), []byte(s.GeocodeKey)) != 1 {
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid geocode key", r.URL.Path)
        return false
    }
    return true
}
