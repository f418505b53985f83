package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/broady/callpath"
)

// Metrics records Prometheus metrics for client calls and mock server
// requests. Calls are labeled by logical path ("/users/:id"), never by
// the substituted URL, so label cardinality follows the registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec

	served        *prometheus.CounterVec
	serveDuration *prometheus.HistogramVec
}

// NewMetrics registers the metrics with reg. A nil reg uses a fresh
// registry, which keeps independent instances from colliding.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		calls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callpath",
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "Total client calls by method, path and status class.",
			},
			[]string{"method", "path", "status"},
		),
		callDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "callpath",
				Subsystem: "client",
				Name:      "request_duration_seconds",
				Help:      "Client call latency until response headers.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		served: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callpath",
				Subsystem: "mock",
				Name:      "requests_total",
				Help:      "Total mock server requests by method, route pattern and status class.",
			},
			[]string{"method", "path", "status"},
		),
		serveDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "callpath",
				Subsystem: "mock",
				Name:      "request_duration_seconds",
				Help:      "Mock server request duration.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Fetcher wraps next so that every call is counted and timed.
// Transport failures are counted with status "error".
func (m *Metrics) Fetcher(next callpath.Fetcher) callpath.Fetcher {
	return callpath.FetcherFunc(func(req *http.Request) (*http.Response, error) {
		path := "unknown"
		if call, ok := callpath.CallFromContext(req.Context()); ok {
			path = call.Path
		}

		start := time.Now()
		resp, err := next.Do(req)
		m.callDuration.WithLabelValues(req.Method, path).Observe(time.Since(start).Seconds())

		status := "error"
		if err == nil && resp != nil {
			status = statusClass(resp.StatusCode)
		}
		m.calls.WithLabelValues(req.Method, path, status).Inc()
		return resp, err
	})
}

// Middleware records served requests. It labels by the matched ServeMux
// pattern, so it must wrap a handler that routes with http.ServeMux.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.serveDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		m.served.WithLabelValues(r.Method, path, statusClass(sw.status)).Inc()
	})
}

// Handler exposes the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, so
// streaming handlers can still flush and set deadlines.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
