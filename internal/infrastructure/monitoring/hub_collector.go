package monitoring

import (
	"worldview/internal/infrastructure/transport/memory"

	"github.com/prometheus/client_golang/prometheus"
)

// HubStatsSource is the in-process transport hub.
type HubStatsSource interface {
	Stats() memory.Stats
}

// hubCollector reads hub counters at scrape time.
type hubCollector struct {
	hub HubStatsSource

	published   *prometheus.Desc
	sent        *prometheus.Desc
	dropped     *prometheus.Desc
	subscribers *prometheus.Desc
}

// RegisterHubStats exports the hub totals and the subscriber count of every
// open scope on reg.
func RegisterHubStats(reg prometheus.Registerer, hub HubStatsSource) error {
	return reg.Register(newHubCollector(hub))
}

func newHubCollector(hub HubStatsSource) *hubCollector {
	return &hubCollector{
		hub: hub,
		published: prometheus.NewDesc("worldview_hub_published_total",
			"Messages accepted by the hub for fan-out", nil, nil),
		sent: prometheus.NewDesc("worldview_hub_sent_total",
			"Copies delivered to subscriber buffers", nil, nil),
		dropped: prometheus.NewDesc("worldview_hub_dropped_total",
			"Copies lost to full subscriber buffers", nil, nil),
		subscribers: prometheus.NewDesc("worldview_hub_subscribers",
			"Open subscriptions per session scope", []string{"session_id"}, nil),
	}
}

func (c *hubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.sent
	ch <- c.dropped
	ch <- c.subscribers
}

func (c *hubCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.hub.Stats()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(stats.TotalPublished))
	ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(stats.TotalSent))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(stats.TotalDropped))
	for id, n := range stats.Subscribers {
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(n), string(id))
	}
}
