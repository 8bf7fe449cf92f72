package obs

import (
	"net/http"
	"strconv"
	"strings"
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

	leaveSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leave_requests_submitted_total",
		Help: "Leave requests accepted by the submit operation.",
	})

	leaveResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_requests_resolved_total",
			Help: "Accepted resolve decisions by action.",
		},
		[]string{"action"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Outbound notification messages by kind.",
		},
		[]string{"kind"},
	)

	workflowActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workflow_executions_active",
		Help: "Workflow executions started but not yet terminal.",
	})

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		leaveSubmitted, leaveResolved, notificationsSent,
		workflowActive, ready,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncLeaveSubmitted counts one accepted submit.
func IncLeaveSubmitted() { leaveSubmitted.Inc() }

// IncLeaveResolved counts one accepted decision.
func IncLeaveResolved(action string) { leaveResolved.WithLabelValues(action).Inc() }

// IncNotificationSent counts one outbound message of the given kind.
func IncNotificationSent(kind string) { notificationsSent.WithLabelValues(kind).Inc() }

// WorkflowStarted / WorkflowFinished track the active execution gauge.
func WorkflowStarted()  { workflowActive.Inc() }
func WorkflowFinished() { workflowActive.Dec() }

// SetReady publishes the readiness state as a gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// CanonicalPath collapses resource identifiers so metric cardinality stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	const prefix = "/v1/leave-requests/"
	if strings.HasPrefix(path, prefix) {
		rest := strings.TrimPrefix(path, prefix)
		if rest != "" && rest != "resolve" && !strings.Contains(rest, "/") {
			return prefix + ":id"
		}
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
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

// statusWriter captures the response code for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
