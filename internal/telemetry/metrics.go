// Package telemetry exposes prometheus collectors for the gossip data
// plane and the registry directory.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	DatagramsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipnet",
			Name:      "datagrams_received_total",
			Help:      "Inbound UDP datagrams by decoded message type.",
		},
		[]string{"type"},
	)

	DatagramsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipnet",
			Name:      "datagrams_sent_total",
			Help:      "Outbound UDP datagrams by message type.",
		},
		[]string{"type"},
	)

	DecodeDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipnet",
			Name:      "decode_drops_total",
			Help:      "Inbound datagrams dropped as malformed.",
		},
	)

	SnippetsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipnet",
			Name:      "snippets_delivered_total",
			Help:      "Snippets handed to the display loop in timestamp order.",
		},
	)

	LivePeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gossipnet",
			Name:      "live_peers",
			Help:      "Peers within the liveness window at the last fan-out pass.",
		},
	)

	RegisteredPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gossipnet",
			Name:      "registered_peers",
			Help:      "Peers currently in the registry directory.",
		},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "gossipnet",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		DatagramsReceived,
		DatagramsSent,
		DecodeDrops,
		SnippetsDelivered,
		LivePeers,
		RegisteredPeers,
		uptime,
	)
}

// MetricsHandler exposes /metrics for the telemetry registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
