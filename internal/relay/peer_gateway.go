package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/tableap/internal/config"
	"github.com/dgnsrekt/tableap/internal/metrics"
)

// DefaultOutboundBuffer is the per-peer queue depth.
const DefaultOutboundBuffer = 32

const peerReadBufSize = 4096

// PeerGateway accepts TCP connections from peer machines and writes routed
// tab lists to them.
//
// Wire format: each payload is written verbatim with no length prefix or
// delimiter. A peer that assumes one read per payload can see two payloads
// coalesced or one split; the bundled peer client decodes the stream instead.
type PeerGateway struct {
	devices        config.Devices
	registry       *Registry
	outboundBuffer int
	metrics        *metrics.Metrics

	mu      sync.Mutex
	conns   map[string]net.Conn
	closing bool
	wg      sync.WaitGroup
}

func NewPeerGateway(devices config.Devices, registry *Registry, outboundBuffer int, m *metrics.Metrics) *PeerGateway {
	if outboundBuffer < 1 {
		outboundBuffer = DefaultOutboundBuffer
	}
	return &PeerGateway{
		devices:        devices,
		registry:       registry,
		outboundBuffer: outboundBuffer,
		metrics:        m,
		conns:          make(map[string]net.Conn),
	}
}

// Maximum wait between retries of a failing Accept.
const maxAcceptDelay = time.Second

// Serve accepts peer connections on ln until ctx is cancelled or ln is
// closed. Other accept errors, such as running out of file descriptors, are
// logged and retried with a capped backoff. On return every connection it
// opened has been closed and unregistered.
func (g *PeerGateway) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("peer gateway listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		g.closeAll()
	})
	defer stop()
	defer g.wg.Wait()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				slog.Info("peer listener closed, dropping peer connections", "addr", ln.Addr().String())
				g.closeAll()
				return nil
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			slog.Warn("peer accept failed, retrying", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.handle(conn)
		}()
	}
}

func (g *PeerGateway) handle(conn net.Conn) {
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}

	if !g.track(id, conn) {
		_ = conn.Close()
		return
	}
	g.metrics.PeerConnected()

	outbound := make(chan []byte, g.outboundBuffer)
	done := make(chan struct{})

	edge, matched := g.devices.EdgeFor(host)
	logger := slog.With("conn_id", id, "remote", remote)
	if matched {
		logger = logger.With("edge", edge)
		prev, replaced := g.registry.Register(DeviceInfo{
			ID:          id,
			Edge:        edge,
			Address:     remote,
			ConnectedAt: time.Now(),
			Outbound:    outbound,
			Done:        done,
		})
		if replaced {
			logger.Info("peer connected, replacing previous device", "previous_conn_id", prev.ID, "previous_address", prev.Address)
		} else {
			logger.Info("peer connected")
		}
	} else {
		logger.Warn("peer address not in devices config, serving unregistered")
	}

	defer func() {
		close(done)
		if matched && g.registry.Unregister(edge, id) {
			logger.Info("device unregistered")
		}
		_ = conn.Close()
		g.untrack(id)
		g.metrics.PeerDisconnected()
	}()

	readErr := make(chan error, 1)
	go func() { readErr <- g.readLoop(conn, logger) }()

	for {
		select {
		case payload := <-outbound:
			if _, err := conn.Write(payload); err != nil {
				logger.Warn("peer write failed", "error", err)
				return
			}
			logger.Debug("tabs written to peer", "bytes", len(payload))
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				logger.Info("peer disconnected")
			} else {
				logger.Warn("peer read failed", "error", err)
			}
			return
		}
	}
}

// readLoop logs whatever the peer sends. Peers are receive-mostly, so the
// bytes are not interpreted.
func (g *PeerGateway) readLoop(conn net.Conn, logger *slog.Logger) error {
	buf := make([]byte, peerReadBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			g.metrics.PeerBytes(n)
			logger.Info("received from peer", payloadAttrs(buf[:n]))
		}
		if err != nil {
			return err
		}
	}
}

func (g *PeerGateway) track(id string, conn net.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.conns[id] = conn
	return true
}

func (g *PeerGateway) untrack(id string) {
	g.mu.Lock()
	delete(g.conns, id)
	g.mu.Unlock()
}

func (g *PeerGateway) closeAll() {
	g.mu.Lock()
	g.closing = true
	conns := make([]net.Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// ConnectionCount returns the number of open peer connections, registered or
// not.
func (g *PeerGateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}
