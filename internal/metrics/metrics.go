// Package metrics holds the relay's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tableap"

// Route results used as the "result" label.
const (
	RouteDelivered = "delivered"
	RouteNoDevice  = "no_device"
	RouteBusy      = "busy"
	RouteGone      = "gone"
	RouteError     = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	gesturesPublished prometheus.Counter
	gesturesDropped   prometheus.Counter
	routes            *prometheus.CounterVec
	peerConns         prometheus.Gauge
	extensionConns    prometheus.Gauge
	peerBytesIn       prometheus.Counter
	decodeErrors      prometheus.Counter
}

// New builds collectors on a private registry with Go runtime and process
// collectors attached.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gesturesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gestures_published_total",
			Help: "Gesture events published to the broadcaster.",
		}),
		gesturesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gestures_dropped_total",
			Help: "Per-subscriber gesture deliveries skipped because the subscriber buffer was full.",
		}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "routes_total",
			Help: "Tab lists handed to the router, by edge and result.",
		}, []string{"edge", "result"}),
		peerConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "peer_connections",
			Help: "Open peer connections, registered or not.",
		}),
		extensionConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "extension_connections",
			Help: "Open browser extension connections.",
		}),
		peerBytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "peer_received_bytes_total",
			Help: "Bytes read from peer connections.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "extension_decode_errors_total",
			Help: "Extension frames that could not be decoded.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.gesturesPublished,
		m.gesturesDropped,
		m.routes,
		m.peerConns,
		m.extensionConns,
		m.peerBytesIn,
		m.decodeErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) GesturePublished(dropped int) {
	if m == nil {
		return
	}
	m.gesturesPublished.Inc()
	m.gesturesDropped.Add(float64(dropped))
}

func (m *Metrics) Routed(edge, result string) {
	if m == nil {
		return
	}
	m.routes.WithLabelValues(edge, result).Inc()
}

func (m *Metrics) PeerConnected() {
	if m != nil {
		m.peerConns.Inc()
	}
}

func (m *Metrics) PeerDisconnected() {
	if m != nil {
		m.peerConns.Dec()
	}
}

func (m *Metrics) ExtensionConnected() {
	if m != nil {
		m.extensionConns.Inc()
	}
}

func (m *Metrics) ExtensionDisconnected() {
	if m != nil {
		m.extensionConns.Dec()
	}
}

func (m *Metrics) PeerBytes(n int) {
	if m == nil {
		return
	}
	m.peerBytesIn.Add(float64(n))
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}
