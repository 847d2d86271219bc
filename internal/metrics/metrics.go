package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // GeocodeRequests counts provider calls by provider and outcome (ok, empty, invalid, error)
    GeocodeRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "geocode_provider_requests_total", Help: "Geocoding provider requests by provider and outcome."},
        []string{"provider", "outcome"},
    )
    // GeocodeResults counts recorded job results by kind (success, failure, noop)
    GeocodeResults = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "geocode_results_total", Help: "Recorded geocode job results."},
        []string{"result"},
    )
    // GeocodeCache counts cache lookups by result (hit, miss, error)
    GeocodeCache = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "geocode_cache_total", Help: "Geocode cache lookups."},
        []string{"result"},
    )
    // ReorderDuration tracks stop reordering latency by strategy and status
    ReorderDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "route_reorder_duration_seconds", Help: "Route reorder duration in seconds.", Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10}},
        []string{"strategy", "status"},
    )
    // RollupFailures counts visit rollup projections that did not apply
    RollupFailures = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "visit_rollup_failures_total", Help: "Visit rollup projections that failed after the outcome was stored."},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(GeocodeRequests)
        Registry.MustRegister(GeocodeResults)
        Registry.MustRegister(GeocodeCache)
        Registry.MustRegister(ReorderDuration)
        Registry.MustRegister(RollupFailures)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
