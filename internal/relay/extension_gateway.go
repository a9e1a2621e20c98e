package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/dgnsrekt/tableap/internal/metrics"
	"github.com/dgnsrekt/tableap/internal/types"
)

// ExtensionGateway upgrades browser extension connections to WebSocket and
// bridges them to the gesture broker and the router.
type ExtensionGateway struct {
	broker  *Broker
	router  *Router
	metrics *metrics.Metrics
	conns   atomic.Int64
}

func NewExtensionGateway(broker *Broker, router *Router, m *metrics.Metrics) *ExtensionGateway {
	return &ExtensionGateway{broker: broker, router: router, metrics: m}
}

// ServeHTTP upgrades the request and runs the connection loop until the
// extension goes away or the request context ends.
func (g *ExtensionGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Warn("extension handshake failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	g.serveConn(r.Context(), conn, r.RemoteAddr)
}

// ConnectionCount returns the number of open extension connections.
func (g *ExtensionGateway) ConnectionCount() int {
	return int(g.conns.Load())
}

// lockedConn serialises frame writes. The reader goroutine answers pings and
// close frames on the same socket the loop writes get_tabs requests to.
type lockedConn struct {
	net.Conn
	mu sync.Mutex
}

func (c *lockedConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.Write(p)
}

// writeText writes one complete text frame with a single Write call.
func (c *lockedConn) writeText(p []byte) error {
	var buf bytes.Buffer
	if err := ws.WriteFrame(&buf, ws.NewTextFrame(p)); err != nil {
		return err
	}
	_, err := c.Write(buf.Bytes())
	return err
}

func (g *ExtensionGateway) serveConn(ctx context.Context, raw net.Conn, remote string) {
	conn := &lockedConn{Conn: raw}
	logger := slog.With("conn_id", uuid.NewString(), "remote", remote)

	subID, events := g.broker.Subscribe()
	g.metrics.ExtensionConnected()
	logger.Info("extension connected", "extensions", g.conns.Add(1))

	// Reports are routed off the loop so a device with a full queue does not
	// hold up get_tabs forwarding or reports for the other edge.
	var routes sync.WaitGroup
	stop := make(chan struct{})
	defer func() {
		close(stop)
		g.broker.Unsubscribe(subID)
		_ = conn.Close()
		routes.Wait()
		g.conns.Add(-1)
		g.metrics.ExtensionDisconnected()
	}()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				readErr <- err
				return
			}
			if op != ws.OpText && op != ws.OpBinary {
				continue
			}
			select {
			case frames <- data:
			case <-stop:
				return
			}
		}
	}()

	// Edge of the most recent get_tabs sent here; used for reports that omit
	// the edge field.
	var lastEdge types.Edge

	for {
		select {
		case <-ctx.Done():
			logger.Info("extension connection closing", "reason", ctx.Err())
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(types.GetTabsRequest(evt.Edge))
			if err != nil {
				logger.Error("encode get_tabs failed", "error", err)
				continue
			}
			if err := conn.writeText(data); err != nil {
				logger.Warn("send get_tabs failed, dropping extension", "edge", evt.Edge, "error", err)
				return
			}
			lastEdge = evt.Edge
			logger.Debug("get_tabs sent", "edge", evt.Edge)
		case data := <-frames:
			g.handleFrame(ctx, logger, data, lastEdge, &routes)
		case err := <-readErr:
			var closed wsutil.ClosedError
			switch {
			case errors.As(err, &closed):
				logger.Info("extension disconnected", "code", closed.Code, "reason", closed.Reason)
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				logger.Info("extension disconnected")
			default:
				logger.Warn("extension read failed", "error", err)
			}
			return
		}
	}
}

// handleFrame decodes one extension message and starts routing a tab report
// on routes. A bad message is logged and skipped; it never ends the
// connection. Concurrent reports for the same edge may reach the device in
// either order.
func (g *ExtensionGateway) handleFrame(ctx context.Context, logger *slog.Logger, data []byte, lastEdge types.Edge, routes *sync.WaitGroup) {
	msg, err := types.DecodeClientMessage(data)
	if err != nil {
		g.metrics.DecodeError()
		logger.Warn("extension message decode failed", "error", err, payloadAttrs(data))
		return
	}

	edge := msg.Edge
	if edge == "" {
		if lastEdge == "" {
			logger.Warn("tab report without edge and no pending request, dropping", "tabs", len(msg.Tabs))
			return
		}
		edge = lastEdge
		logger.Debug("tab report without edge, using last requested edge", "edge", edge)
	}

	logger.Info("tabs received from extension", "edge", edge, "tabs", len(msg.Tabs))
	routes.Add(1)
	go func() {
		defer routes.Done()
		if err := g.router.Route(ctx, edge, msg.Tabs); err != nil {
			logger.Debug("tab report not delivered", "edge", edge, "error", err)
		}
	}()
}
