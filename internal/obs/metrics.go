package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by the whole API surface.
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
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	txRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "db_tx_retries_total",
		Help: "Transactional units of work re-executed after a transient storage error.",
	})

	versionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimistic_lock_conflicts_total",
			Help: "Updates rejected because the caller supplied a stale version.",
		},
		[]string{"entity"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		txRetriesTotal,
		versionConflictsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTxRetry counts one re-execution of a transactional unit of work.
func ObserveTxRetry() {
	txRetriesTotal.Inc()
}

// ObserveVersionConflict counts one rejected optimistic-lock update.
func ObserveVersionConflict(entity string) {
	versionConflictsTotal.WithLabelValues(entity).Inc()
}

// CanonicalPath collapses resource identifiers so metric labels stay bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "audits":
		return "/api/audits/:id"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "audits" && parts[3] == "status":
		return "/api/audits/:id/status"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "notifications" && parts[3] == "read":
		return "/api/notifications/:id/read"
	case len(parts) == 5 && parts[0] == "api" && parts[1] == "admin" && parts[2] == "users" && parts[4] == "roles":
		return "/api/admin/users/:id/roles"
	}
	return path
}

// Instrument wraps next with RPS/latency/in-flight accounting.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter records the response code for the metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
