package monitoring

import (
	"worldview/internal/core/domain"
	"worldview/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	messagesPublished *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec

	joinAttempts prometheus.Counter
	joinOutcomes *prometheus.CounterVec
	replications prometheus.Counter
	restores     *prometheus.CounterVec

	devicesHosted prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ ports.SyncMetrics = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the collectors on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler, or a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		messagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worldview_messages_published_total",
			Help: "Messages published on session scopes, by type",
		}, []string{"type"}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worldview_messages_received_total",
			Help: "Messages handled by device event loops, by type",
		}, []string{"type"}),

		messagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worldview_messages_dropped_total",
			Help: "Messages lost because a subscriber buffer was full, by type",
		}, []string{"type"}),

		joinAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "worldview_join_attempts_total",
			Help: "JOIN_REQUEST announcements sent by cameras",
		}),

		joinOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worldview_join_outcomes_total",
			Help: "Camera joins that ended joined or failed",
		}, []string{"state"}),

		replications: factory.NewCounter(prometheus.CounterOpts{
			Name: "worldview_replications_total",
			Help: "Snapshots persisted and broadcast by directors",
		}),

		restores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worldview_session_restores_total",
			Help: "Startup restore attempts by outcome",
		}, []string{"outcome"}),

		devicesHosted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worldview_devices_hosted",
			Help: "Devices currently hosted by this process",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worldview_http_requests_total",
			Help: "Control API requests by route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worldview_http_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) MessagePublished(t domain.MessageType) {
	p.messagesPublished.WithLabelValues(string(t)).Inc()
}

func (p *PrometheusCollector) MessageReceived(t domain.MessageType) {
	p.messagesReceived.WithLabelValues(string(t)).Inc()
}

func (p *PrometheusCollector) MessageDropped(t domain.MessageType) {
	p.messagesDropped.WithLabelValues(string(t)).Inc()
}

func (p *PrometheusCollector) JoinAttempt() {
	p.joinAttempts.Inc()
}

func (p *PrometheusCollector) JoinOutcome(state domain.JoinState) {
	p.joinOutcomes.WithLabelValues(string(state)).Inc()
}

func (p *PrometheusCollector) Replication() {
	p.replications.Inc()
}

func (p *PrometheusCollector) Restore(outcome string) {
	p.restores.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) DevicesHosted(n int) {
	p.devicesHosted.Set(float64(n))
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, seconds float64) {
	p.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
