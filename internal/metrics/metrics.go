// Package metrics exposes Prometheus collectors for the back office.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the application-specific Prometheus collectors. All
// recording methods are safe on a nil receiver so components can run
// unmetered in tests.
type Registry struct {
	registry *prometheus.Registry

	httpInFlight      prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	settingsPolls     *prometheus.CounterVec
	settingsWrites    *prometheus.CounterVec
	broadcastClients  prometheus.Gauge
	broadcastMessages prometheus.Counter
	exportRows        *prometheus.CounterVec
}

// New creates a Registry backed by a fresh Prometheus registry.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "apex",
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apex",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "path"},
		),
		settingsPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "settings",
				Name:      "poll_ticks_total",
				Help:      "Total settings poll ticks by outcome.",
			},
			[]string{"outcome"}, // unchanged, changed, error
		),
		settingsWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "settings",
				Name:      "key_writes_total",
				Help:      "Total settings key writes by result.",
			},
			[]string{"result"},
		),
		broadcastClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "apex",
				Subsystem: "broadcast",
				Name:      "connected_clients",
				Help:      "Current number of connected broadcast clients.",
			},
		),
		broadcastMessages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "broadcast",
				Name:      "messages_total",
				Help:      "Total broadcast messages fanned out.",
			},
		),
		exportRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "export",
				Name:      "rows_total",
				Help:      "Total rows written to CSV exports per table.",
			},
			[]string{"table"},
		),
	}

	r.registry.MustRegister(
		r.httpInFlight,
		r.httpRequests,
		r.httpDuration,
		r.settingsPolls,
		r.settingsWrites,
		r.broadcastClients,
		r.broadcastMessages,
		r.exportRows,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func (r *Registry) InstrumentHandler(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/metrics" {
			next.ServeHTTP(w, req)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		r.httpInFlight.Inc()
		defer r.httpInFlight.Dec()

		next.ServeHTTP(rec, req)

		duration := time.Since(start)
		path := canonicalPath(req.URL.Path)
		method := strings.ToUpper(req.Method)

		r.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		r.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordPollTick records a settings poll tick outcome: unchanged, changed,
// or error.
func (r *Registry) RecordPollTick(outcome string) {
	if r == nil {
		return
	}
	r.settingsPolls.WithLabelValues(outcome).Inc()
}

// RecordSettingsWrite records one per-key settings write result.
func (r *Registry) RecordSettingsWrite(ok bool) {
	if r == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	r.settingsWrites.WithLabelValues(result).Inc()
}

// SetBroadcastClients updates the connected client gauge.
func (r *Registry) SetBroadcastClients(n int) {
	if r == nil {
		return
	}
	r.broadcastClients.Set(float64(n))
}

// RecordBroadcast counts one fanned-out broadcast message.
func (r *Registry) RecordBroadcast() {
	if r == nil {
		return
	}
	r.broadcastMessages.Inc()
}

// RecordExportRows counts rows written to a table's CSV export.
func (r *Registry) RecordExportRows(table string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.exportRows.WithLabelValues(table).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack delegates to the wrapped writer so websocket upgrades keep working
// through the instrumented handler.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := r.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("metrics: underlying ResponseWriter does not implement http.Hijacker")
}

// canonicalPath collapses resource IDs so the path label stays low-cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	// /api/v1/<resource>[/<id>[/<action>]]
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "v1" {
		if parts[2] == "admin" && len(parts) >= 4 {
			if len(parts) > 4 {
				return "/api/v1/admin/" + parts[3] + "/:id"
			}
			return "/api/v1/admin/" + parts[3]
		}
		if len(parts) > 3 {
			return "/api/v1/" + parts[2] + "/:id"
		}
		return "/api/v1/" + parts[2]
	}
	return "/" + parts[0]
}
