package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "role", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "role", "status"},
	)

	grantDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_decisions_total",
			Help: "Grant mutations by outcome (declined, windowed, assigned).",
		},
		[]string{"outcome"},
	)

	sessionUpserts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "service_session_upserts_total",
		Help: "ServiceSession rows created or refreshed on citizen reads.",
	})
)

// Init registers metrics with the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, grantDecisionsTotal, sessionUpserts)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGrantDecision counts a grant mutation outcome.
func ObserveGrantDecision(outcome string) {
	grantDecisionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSessionUpsert counts a ServiceSession create/refresh.
func ObserveSessionUpsert() {
	sessionUpserts.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement. The
// role label is the first path segment (citizen/grantee/admin/manager/auth)
// so cardinality stays bounded regardless of record ids in the path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := rolePrefix(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, role, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, role, status).Inc()
		httpInFlight.Dec()
	})
}

func rolePrefix(path string) string {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i]
		}
	}
	if path == "" {
		return "root"
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
