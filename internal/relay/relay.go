// Package relay moves tab lists from local browser extensions to the peer
// machine registered for a screen edge.
//
// A gesture is published on the Broker, every ExtensionGateway connection
// turns it into a get_tabs request, and the tab report that comes back is
// handed to the Router, which looks the edge up in the Registry and queues the
// payload for that edge's PeerGateway connection.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tableap/internal/config"
	"github.com/dgnsrekt/tableap/internal/metrics"
	"github.com/dgnsrekt/tableap/internal/types"
)

// Options tunes queue sizes and timeouts. Zero values select the defaults.
type Options struct {
	GestureBuffer  int
	OutboundBuffer int
	RouteTimeout   time.Duration
	Metrics        *metrics.Metrics
}

// Relay wires the broker, registry, router and both gateways together.
type Relay struct {
	Broker     *Broker
	Registry   *Registry
	Router     *Router
	Peers      *PeerGateway
	Extensions *ExtensionGateway
}

// New builds a relay for the given address→edge table.
func New(devices config.Devices, opts Options) *Relay {
	broker := NewBroker(opts.GestureBuffer, opts.Metrics)
	registry := NewRegistry()
	router := NewRouter(registry, opts.RouteTimeout, opts.Metrics)
	return &Relay{
		Broker:     broker,
		Registry:   registry,
		Router:     router,
		Peers:      NewPeerGateway(devices, registry, opts.OutboundBuffer, opts.Metrics),
		Extensions: NewExtensionGateway(broker, router, opts.Metrics),
	}
}

// Trigger publishes a gesture for edge and returns how many extension
// connections accepted it.
func (r *Relay) Trigger(edge types.Edge) int {
	n := r.Broker.Publish(types.GestureEvent{Edge: edge})
	slog.Info("gesture published", "edge", edge, "extensions", n, "subscribers", r.Broker.ClientCount())
	return n
}

// Devices returns the registered peer devices sorted by edge.
func (r *Relay) Devices() []DeviceInfo {
	return r.Registry.List()
}

// ExtensionCount returns the number of connected browser extensions.
func (r *Relay) ExtensionCount() int {
	return r.Extensions.ConnectionCount()
}

// PeerCount returns the number of open peer connections, registered or not.
func (r *Relay) PeerCount() int {
	return r.Peers.ConnectionCount()
}

// Route sends tabs straight to the device on edge, bypassing the extensions.
func (r *Relay) Route(ctx context.Context, edge types.Edge, tabs types.TabList) error {
	return r.Router.Route(ctx, edge, tabs)
}
