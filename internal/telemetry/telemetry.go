// Package telemetry exposes client health as Prometheus metrics.
//
// [Metrics] implements the connection registry's observer interface and
// records refresh job outcomes, so one registry serves the mirror server's
// /metrics endpoint.
package telemetry

import (
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jpalmerr/pulsedeck/message"
)

const namespace = "pulsedeck"

// numericSegment matches an id path segment such as "/42/".
var numericSegment = regexp.MustCompile(`/\d+/`)

// Metrics holds the client's collectors.
type Metrics struct {
	connectionsOpen *prometheus.GaugeVec
	reconnects      *prometheus.CounterVec
	abandoned       *prometheus.CounterVec
	messages        *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// connectionsOpen is 1 while a channel's socket is open
		connectionsOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connection_open",
			Help:      "Whether the WebSocket channel is currently open (1) or not (0)",
		}, []string{"channel"}),

		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled per channel",
		}, []string{"channel"}),

		abandoned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_connections_abandoned_total",
			Help:      "Channels given up on after exhausting reconnect attempts",
		}, []string{"channel"}),

		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_received_total",
			Help:      "Decoded messages received by channel and type",
		}, []string{"channel", "type"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_dropped_total",
			Help:      "Malformed frames discarded by channel",
		}, []string{"channel"}),

		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Refresh job runs by job and result",
		}, []string{"job", "result"}),

		refreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Refresh job duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"job"}),
	}
}

// ChannelLabel collapses per-service paths so label cardinality stays
// bounded: "/ws/services/12/" becomes "/ws/services/{id}/".
func ChannelLabel(path string) string {
	return numericSegment.ReplaceAllString(path, "/{id}/")
}

func (m *Metrics) ConnectionOpened(path string) {
	m.connectionsOpen.WithLabelValues(ChannelLabel(path)).Set(1)
}

func (m *Metrics) ConnectionClosed(path string) {
	m.connectionsOpen.WithLabelValues(ChannelLabel(path)).Set(0)
}

func (m *Metrics) ReconnectScheduled(path string, _ int, _ time.Duration) {
	m.reconnects.WithLabelValues(ChannelLabel(path)).Inc()
}

func (m *Metrics) ConnectionAbandoned(path string) {
	m.abandoned.WithLabelValues(ChannelLabel(path)).Inc()
}

func (m *Metrics) MessageReceived(path string, kind message.Kind) {
	m.messages.WithLabelValues(ChannelLabel(path), string(kind)).Inc()
}

func (m *Metrics) MessageDropped(path string) {
	m.dropped.WithLabelValues(ChannelLabel(path)).Inc()
}

// ObserveRefresh records one refresh job run.
func (m *Metrics) ObserveRefresh(job string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(job, result).Inc()
	m.refreshDuration.WithLabelValues(job).Observe(d.Seconds())
}
