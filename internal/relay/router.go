package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tableap/internal/metrics"
	"github.com/dgnsrekt/tableap/internal/types"
)

// DefaultRouteTimeout bounds how long Route waits on a full device queue.
const DefaultRouteTimeout = 2 * time.Second

var (
	ErrNoDevice   = errors.New("no device registered for edge")
	ErrDeviceBusy = errors.New("device outbound queue full")
	ErrDeviceGone = errors.New("device disconnected before delivery")
)

// Router delivers tab lists to the peer registered for an edge. Only targeted
// unicast is supported; a tab list never reaches a peer on another edge.
type Router struct {
	registry *Registry
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewRouter(registry *Registry, timeout time.Duration, m *metrics.Metrics) *Router {
	if timeout <= 0 {
		timeout = DefaultRouteTimeout
	}
	return &Router{registry: registry, timeout: timeout, metrics: m}
}

// Route encodes tabs and queues them on the outbound channel of the device
// registered for edge. Failures are logged and returned; none of them are
// fatal to the relay. A full queue only delays this call, never routing to
// other devices.
func (r *Router) Route(ctx context.Context, edge types.Edge, tabs types.TabList) error {
	payload, err := types.EncodeTabList(tabs)
	if err != nil {
		r.metrics.Routed(string(edge), metrics.RouteError)
		return fmt.Errorf("route %s: %w", edge, err)
	}

	dev, ok := r.registry.Lookup(edge)
	if !ok {
		slog.Warn("route: no device registered for edge, dropping tabs", "edge", edge, "tabs", len(tabs))
		r.metrics.Routed(string(edge), metrics.RouteNoDevice)
		return fmt.Errorf("route %s: %w", edge, ErrNoDevice)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case dev.Outbound <- payload:
		slog.Info("route: tabs queued for device", "edge", edge, "conn_id", dev.ID, "address", dev.Address, "tabs", len(tabs))
		r.metrics.Routed(string(edge), metrics.RouteDelivered)
		return nil
	case <-dev.Done:
		slog.Warn("route: device disconnected, dropping tabs", "edge", edge, "conn_id", dev.ID)
		r.metrics.Routed(string(edge), metrics.RouteGone)
		return fmt.Errorf("route %s: %w", edge, ErrDeviceGone)
	case <-timer.C:
		slog.Warn("route: device queue full, dropping tabs", "edge", edge, "conn_id", dev.ID, "timeout", r.timeout)
		r.metrics.Routed(string(edge), metrics.RouteBusy)
		return fmt.Errorf("route %s: %w", edge, ErrDeviceBusy)
	case <-ctx.Done():
		r.metrics.Routed(string(edge), metrics.RouteError)
		return fmt.Errorf("route %s: %w", edge, ctx.Err())
	}
}
