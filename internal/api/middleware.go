package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fieldcrm/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// logMiddleware records an access log line and request metrics.
func logMiddleware(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		dur := time.Since(start)
		path := metricPath(r.URL.Path)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(dur.Seconds())
		entry := log.WithFields(logrus.Fields{
			"remote":   r.RemoteAddr,
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": dur.String(),
		})
		if rec.status >= 500 {
			entry.Warn("request")
		} else {
			entry.Info("request")
		}
	})
}

// metricPaths lists every label metricPath may return besides "other".
var metricPaths = map[string]bool{
	"/v1/geocode/jobs":              true,
	"/v1/geocode/jobs/claim":        true,
	"/v1/geocode/results":           true,
	"/v1/geocode/failures":          true,
	"/v1/routes":                    true,
	"/v1/routes/{id}":               true,
	"/v1/routes/{id}/reorder":       true,
	"/v1/routes/{id}/stops":         true,
	"/v1/routes/{id}/geometry":      true,
	"/v1/routes/{id}/export.xlsx":   true,
	"/v1/routes/{id}/events/stream": true,
	"/v1/routes/{id}/events/ws":     true,
	"/v1/stops/{id}":                true,
	"/v1/targets":                   true,
	"/v1/targets/{id}":              true,
	"/v1/admin/geocode/bulk":        true,
	"/v1/admin/debug":               true,
	"/healthz":                      true,
	"/readyz":                       true,
	"/version":                      true,
	"/metrics":                      true,
}

// metricPath collapses ids and maps unregistered paths to "other" so route
// labels stay bounded.
func metricPath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "routes", "stops", "targets":
			parts[2] = "{id}"
		}
	}
	label := "/" + strings.Join(parts, "/")
	if !metricPaths[label] {
		return "other"
	}
	return label
}

// rateLimit applies a token bucket per client IP. rps <= 0 disables it.
func rateLimit(rps float64, burst int, next http.Handler) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		mu.Lock()
		l, ok := limiters[ip]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[ip] = l
		}
		mu.Unlock()
		if !l.Allow() {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		return next
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-User-Id", "X-Role", "X-Geocode-Key"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         600,
	})
	return c.Handler(next)
}
