// Package peer is the receiving side of the relay: it keeps a TCP connection
// to the relay's peer gateway open and opens every tab list it receives.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dgnsrekt/tableap/internal/types"
)

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Opener is the collaborator that opens URLs in a local browser.
type Opener interface {
	Open(ctx context.Context, urls []string) error
}

// Dialer opens a connection to the relay.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	Addr    string
	Backoff *Backoff
	Dialer  Dialer
	Clock   clock.Clock
}

// Client dials the relay and reconnects forever with exponential backoff.
type Client struct {
	addr    string
	backoff *Backoff
	dialer  Dialer
	clock   clock.Clock
	opener  Opener

	mu    sync.Mutex
	state State
}

func NewClient(opts Options, opener Opener) *Client {
	c := &Client{
		addr:    opts.Addr,
		backoff: opts.Backoff,
		dialer:  opts.Dialer,
		clock:   opts.Clock,
		opener:  opener,
	}
	if c.backoff == nil {
		c.backoff = NewBackoff(time.Second, 30)
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{Timeout: 10 * time.Second}
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		slog.Debug("peer client state", "from", prev, "to", s, "relay", c.addr)
	}
}

// Run dials, reads, and redials until ctx is cancelled. There is no attempt
// limit. A dropped connection waits the initial backoff delay before
// redialing. It returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	for {
		c.setState(Connecting)
		conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			c.setState(Disconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := c.backoff.Next()
			slog.Warn("relay dial failed, retrying", "relay", c.addr, "retry_in", delay, "error", err)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		c.backoff.Reset()
		c.setState(Connected)
		slog.Info("connected to relay", "relay", c.addr, "local", conn.LocalAddr().String())

		err = c.serve(ctx, conn)
		c.setState(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The sequence was reset on connect; wait the initial delay without
		// advancing it so the first failed redial still waits one unit.
		delay := c.backoff.Initial
		if errors.Is(err, io.EOF) {
			slog.Info("relay closed the connection", "relay", c.addr, "retry_in", delay)
		} else {
			slog.Warn("relay connection lost", "relay", c.addr, "retry_in", delay, "error", err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	t := c.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// serve decodes consecutive JSON tab lists from conn until it fails. The
// relay writes payloads back to back without framing, so a streaming decoder
// is used rather than one payload per read.
func (c *Client) serve(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	dec := json.NewDecoder(conn)
	for {
		var tabs types.TabList
		if err := dec.Decode(&tabs); err != nil {
			return err
		}
		slog.Info("tabs received from relay", "tabs", len(tabs))
		if len(tabs) == 0 {
			continue
		}
		if err := c.opener.Open(ctx, tabs); err != nil {
			slog.Error("open tabs failed", "tabs", len(tabs), "error", err)
		}
	}
}
