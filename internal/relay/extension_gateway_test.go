package relay

import (
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/tableap/internal/types"
)

type extensionFixture struct {
	broker *Broker
	out    chan []byte
	url    string
}

func newExtensionFixture(t *testing.T, edge types.Edge) *extensionFixture {
	t.Helper()
	broker := NewBroker(DefaultGestureBuffer, nil)
	reg := NewRegistry()
	dev, out, _ := newDevice("dev", edge, 4)
	reg.Register(dev)
	g := NewExtensionGateway(broker, NewRouter(reg, time.Second, nil), nil)
	return &extensionFixture{broker: broker, out: out, url: startExtensionServer(t, g)}
}

func (f *extensionFixture) expectPayload(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-f.out:
		if string(got) != want {
			t.Fatalf("device received %s; want %s", got, want)
		}
	case <-time.After(testTimeout):
		t.Fatalf("device did not receive %s", want)
	}
}

func TestExtensionGatewayForwardsGestureAndRoutesReport(t *testing.T) {
	f := newExtensionFixture(t, types.EdgeLeft)
	conn := dialExtension(t, f.url)
	waitFor(t, "extension subscription", func() bool { return f.broker.ClientCount() == 1 })

	f.broker.Publish(types.GestureEvent{Edge: types.EdgeLeft})
	if got, want := readServerText(t, conn), `{"action":"get_tabs","edge":"left"}`; got != want {
		t.Fatalf("extension received %s; want %s", got, want)
	}

	writeClientText(t, conn, `{"action":"tabs","tabs":["https://x"],"edge":"left"}`)
	f.expectPayload(t, `["https://x"]`)
}

func TestExtensionGatewaySurvivesMalformedMessages(t *testing.T) {
	f := newExtensionFixture(t, types.EdgeRight)
	conn := dialExtension(t, f.url)
	waitFor(t, "extension subscription", func() bool { return f.broker.ClientCount() == 1 })

	writeClientText(t, conn, `not json at all`)
	writeClientText(t, conn, `{"action":"tel","urls":["https://x"]}`)
	writeClientText(t, conn, `{"action":"tabs","tabs":["https://ok"],"edge":"right"}`)
	f.expectPayload(t, `["https://ok"]`)
}

func TestExtensionGatewayUsesLastRequestedEdgeForUntaggedReport(t *testing.T) {
	f := newExtensionFixture(t, types.EdgeRight)
	conn := dialExtension(t, f.url)
	waitFor(t, "extension subscription", func() bool { return f.broker.ClientCount() == 1 })

	// No get_tabs yet: an untagged report has nowhere to go.
	writeClientText(t, conn, `{"action":"tabs","tabs":["https://early"]}`)

	f.broker.Publish(types.GestureEvent{Edge: types.EdgeRight})
	readServerText(t, conn)
	writeClientText(t, conn, `{"action":"tabs","tabs":["https://late"]}`)
	f.expectPayload(t, `["https://late"]`)
}

func TestExtensionGatewayEndsOnCloseFrame(t *testing.T) {
	f := newExtensionFixture(t, types.EdgeLeft)
	conn := dialExtension(t, f.url)
	waitFor(t, "extension subscription", func() bool { return f.broker.ClientCount() == 1 })

	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "bye")
	if err := wsutil.WriteClientMessage(conn, ws.OpClose, body); err != nil {
		t.Fatalf("write close frame: %v", err)
	}
	waitFor(t, "extension unsubscribe", func() bool { return f.broker.ClientCount() == 0 })
}

func TestExtensionGatewayKeepsServingWhileDeviceQueueFull(t *testing.T) {
	broker := NewBroker(DefaultGestureBuffer, nil)
	reg := NewRegistry()
	left, leftOut, _ := newDevice("left", types.EdgeLeft, 1)
	right, rightOut, _ := newDevice("right", types.EdgeRight, 1)
	reg.Register(left)
	reg.Register(right)
	leftOut <- []byte(`["queued"]`)

	g := NewExtensionGateway(broker, NewRouter(reg, 1500*time.Millisecond, nil), nil)
	conn := dialExtension(t, startExtensionServer(t, g))
	waitFor(t, "extension subscription", func() bool { return broker.ClientCount() == 1 })

	// This report waits on the full left queue.
	writeClientText(t, conn, `{"action":"tabs","tabs":["https://stuck"],"edge":"left"}`)
	start := time.Now()
	writeClientText(t, conn, `{"action":"tabs","tabs":["https://other"],"edge":"right"}`)

	select {
	case got := <-rightOut:
		if string(got) != `["https://other"]` {
			t.Fatalf("right device received %s", got)
		}
	case <-time.After(testTimeout):
		t.Fatal("right report never delivered")
	}
	if waited := time.Since(start); waited > 500*time.Millisecond {
		t.Fatalf("right report delivered after %v; want it not to wait on the left queue", waited)
	}

	broker.Publish(types.GestureEvent{Edge: types.EdgeRight})
	if got, want := readServerText(t, conn), `{"action":"get_tabs","edge":"right"}`; got != want {
		t.Fatalf("extension received %s; want %s", got, want)
	}
	if waited := time.Since(start); waited > 500*time.Millisecond {
		t.Fatalf("get_tabs forwarded after %v; want it not to wait on the left queue", waited)
	}
}
