package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API, worker, and realtime flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	deliveriesTotal         *prometheus.CounterVec
	escalationsTotal        *prometheus.CounterVec
	requestsExhaustedTotal  prometheus.Counter
	attemptDuration         *prometheus.HistogramVec
	activeConnections       prometheus.Gauge
	replayAppendsTotal      prometheus.Counter
	replayGapsTotal         prometheus.Counter
	heartbeatEvictionsTotal prometheus.Counter
	workerInflight          prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_core",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_core",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_core",
				Name:      "deliveries_total",
				Help:      "Total number of channel attempts by channel and terminal attempt status.",
			},
			[]string{"channel", "status"},
		),
		escalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_core",
				Name:      "escalations_total",
				Help:      "Total number of channel escalations by source and target channel.",
			},
			[]string{"from", "to"},
		),
		requestsExhaustedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_core",
				Name:      "requests_exhausted_total",
				Help:      "Total number of requests that ended exhausted with no channel delivered.",
			},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_core",
				Name:      "delivery_attempt_duration_seconds",
				Help:      "Channel attempt duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "notify_core",
				Name:      "active_connections",
				Help:      "Current number of connections tracked by the registry.",
			},
		),
		replayAppendsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_core",
				Name:      "replay_appends_total",
				Help:      "Total number of entries appended to the replay log.",
			},
		),
		replayGapsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_core",
				Name:      "replay_gaps_total",
				Help:      "Total number of reconnects that required a full resync.",
			},
		),
		heartbeatEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_core",
				Name:      "heartbeat_evictions_total",
				Help:      "Total number of connections evicted after heartbeat timeout.",
			},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "notify_core",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight delivery workers.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesTotal,
		m.escalationsTotal,
		m.requestsExhaustedTotal,
		m.attemptDuration,
		m.activeConnections,
		m.replayAppendsTotal,
		m.replayGapsTotal,
		m.heartbeatEvictionsTotal,
		m.workerInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDelivery(channel string, status string) {
	if m == nil {
		return
	}
	statusLabel := strings.TrimSpace(strings.ToLower(status))
	if statusLabel == "" {
		statusLabel = "unknown"
	}
	m.deliveriesTotal.WithLabelValues(normalizeChannel(channel), statusLabel).Inc()
}

func (m *Metrics) IncEscalation(from string, to string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(normalizeChannel(from), normalizeChannel(to)).Inc()
}

func (m *Metrics) IncExhausted() {
	if m == nil {
		return
	}
	m.requestsExhaustedTotal.Inc()
}

func (m *Metrics) ObserveAttemptDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.attemptDuration.WithLabelValues(normalizeChannel(channel)).Observe(seconds)
}

func (m *Metrics) SetActiveConnections(count int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func (m *Metrics) IncReplayAppend() {
	if m == nil {
		return
	}
	m.replayAppendsTotal.Inc()
}

func (m *Metrics) IncReplayGap() {
	if m == nil {
		return
	}
	m.replayGapsTotal.Inc()
}

func (m *Metrics) IncHeartbeatEviction() {
	if m == nil {
		return
	}
	m.heartbeatEvictionsTotal.Inc()
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeChannel(channel string) string {
	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
