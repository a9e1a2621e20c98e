package peer

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

const testTimeout = 2 * time.Second

type recordingOpener struct {
	mu     sync.Mutex
	calls  [][]string
	called chan struct{}
}

func newRecordingOpener() *recordingOpener {
	return &recordingOpener{called: make(chan struct{}, 16)}
}

func (o *recordingOpener) Open(_ context.Context, urls []string) error {
	o.mu.Lock()
	o.calls = append(o.calls, urls)
	o.mu.Unlock()
	o.called <- struct{}{}
	return nil
}

func (o *recordingOpener) wait(t *testing.T, n int) [][]string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-o.called:
		case <-time.After(testTimeout):
			t.Fatalf("opener called %d times; want %d", i, n)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]string(nil), o.calls...)
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func runClient(t *testing.T, c *Client) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run() = %v; want context.Canceled", err)
			}
		case <-time.After(testTimeout):
			t.Errorf("Run() did not return after cancel")
		}
	})
	return cancel
}

func accept(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("accept: %v", r.err)
		}
		t.Cleanup(func() { _ = r.conn.Close() })
		return r.conn
	case <-time.After(testTimeout):
		t.Fatal("client never connected")
		return nil
	}
}

func TestClientDecodesCoalescedPayloads(t *testing.T) {
	ln := listen(t)
	opener := newRecordingOpener()
	c := NewClient(Options{Addr: ln.Addr().String(), Backoff: NewBackoff(time.Millisecond, 30)}, opener)
	runClient(t, c)

	conn := accept(t, ln)
	// Two payloads in one write, then one split across writes, then an
	// empty list which is not opened.
	if _, err := conn.Write([]byte(`["https://a.test"]["https://b.test","https://c.test"]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := conn.Write([]byte(`["https://d`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := conn.Write([]byte(`.test"][]`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := opener.wait(t, 3)
	want := [][]string{{"https://a.test"}, {"https://b.test", "https://c.test"}, {"https://d.test"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("opened %v; want %v", got, want)
	}
	if c.State() != Connected {
		t.Fatalf("State() = %v; want connected", c.State())
	}
}

func TestClientReconnectsAfterRelayCloses(t *testing.T) {
	ln := listen(t)
	opener := newRecordingOpener()
	c := NewClient(Options{Addr: ln.Addr().String(), Backoff: NewBackoff(time.Millisecond, 30)}, opener)
	runClient(t, c)

	first := accept(t, ln)
	_ = first.Close()

	second := accept(t, ln)
	if _, err := second.Write([]byte(`["https://again.test"]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := opener.wait(t, 1); !reflect.DeepEqual(got, [][]string{{"https://again.test"}}) {
		t.Fatalf("opened %v", got)
	}
}

func TestClientReconnectsAfterGarbage(t *testing.T) {
	ln := listen(t)
	opener := newRecordingOpener()
	c := NewClient(Options{Addr: ln.Addr().String(), Backoff: NewBackoff(time.Millisecond, 30)}, opener)
	runClient(t, c)

	first := accept(t, ln)
	if _, err := first.Write([]byte(`{"not":"a list"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	second := accept(t, ln)
	if _, err := second.Write([]byte(`["https://ok.test"]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	opener.wait(t, 1)
}

type failingDialer struct {
	attempts chan struct{}
}

func (d *failingDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	d.attempts <- struct{}{}
	return nil, errors.New("connection refused")
}

func TestClientWaitsOnClockBetweenAttempts(t *testing.T) {
	mock := clock.NewMock()
	dialer := &failingDialer{attempts: make(chan struct{}, 16)}
	c := NewClient(Options{Addr: "relay:24811", Dialer: dialer, Clock: mock}, newRecordingOpener())
	runClient(t, c)

	select {
	case <-dialer.attempts:
	case <-time.After(testTimeout):
		t.Fatal("no dial attempt")
	}
	// The mock clock never advances, so the client must stay in backoff.
	select {
	case <-dialer.attempts:
		t.Fatal("redialed without waiting for backoff")
	case <-time.After(50 * time.Millisecond):
	}
	if c.State() != Disconnected {
		t.Fatalf("State() = %v; want disconnected", c.State())
	}

	deadline := time.After(testTimeout)
	for {
		mock.Add(time.Second)
		select {
		case <-dialer.attempts:
			return
		case <-deadline:
			t.Fatal("no redial after advancing the clock")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// sleepRecordingClock reports every timer duration after the timer exists,
// so a test can advance the mock by exactly that amount.
type sleepRecordingClock struct {
	*clock.Mock
	slept chan time.Duration
}

func (c *sleepRecordingClock) Timer(d time.Duration) *clock.Timer {
	t := c.Mock.Timer(d)
	c.slept <- d
	return t
}

// onceDialer hands out one connection whose far end is already closed, then
// refuses every later dial.
type onceDialer struct {
	calls int
}

func (d *onceDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	d.calls++
	if d.calls > 1 {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func TestClientBackoffRestartsAfterDroppedConnection(t *testing.T) {
	clk := &sleepRecordingClock{Mock: clock.NewMock(), slept: make(chan time.Duration, 1)}
	c := NewClient(Options{
		Addr:    "relay:24811",
		Backoff: NewBackoff(time.Second, 30),
		Dialer:  &onceDialer{},
		Clock:   clk,
	}, newRecordingOpener())
	runClient(t, c)

	// drop after connect, first failed redial, second failed redial
	want := []time.Duration{time.Second, time.Second, 2 * time.Second}
	for i, w := range want {
		select {
		case got := <-clk.slept:
			if got != w {
				t.Fatalf("wait %d = %v; want %v (all want %v)", i, got, w, want)
			}
			clk.Add(got)
		case <-time.After(testTimeout):
			t.Fatalf("client did not wait before attempt %d", i+2)
		}
	}
}
