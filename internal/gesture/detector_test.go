package gesture

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dgnsrekt/tableap/internal/types"
)

const screen = 1920

func move(x float64) Pointer {
	return Pointer{Kind: KindMove, X: x, ScreenWidth: screen, BrowserFocused: true}
}

func feed(t *testing.T, d *Detector, p Pointer) (types.Edge, bool) {
	t.Helper()
	edge, ok, err := d.Feed(p)
	if err != nil {
		t.Fatalf("Feed(%+v) error = %v", p, err)
	}
	return edge, ok
}

func TestDetectorTriggersAfterHoldAtEdge(t *testing.T) {
	clk := clock.NewMock()
	d := NewDetector(DefaultConfig(), clk)

	feed(t, d, Pointer{Kind: KindPress})
	clk.Add(100 * time.Millisecond)
	if _, ok := feed(t, d, move(5)); ok {
		t.Fatal("triggered before the hold threshold")
	}

	clk.Add(300 * time.Millisecond)
	if _, ok := feed(t, d, move(900)); ok {
		t.Fatal("triggered away from the edges")
	}
	edge, ok := feed(t, d, move(3))
	if !ok || edge != types.EdgeLeft {
		t.Fatalf("Feed(left edge) = %q, %v; want left, true", edge, ok)
	}
}

func TestDetectorCooldown(t *testing.T) {
	clk := clock.NewMock()
	d := NewDetector(DefaultConfig(), clk)

	feed(t, d, Pointer{Kind: KindPress})
	clk.Add(time.Second)
	if edge, ok := feed(t, d, move(screen-1)); !ok || edge != types.EdgeRight {
		t.Fatalf("first trigger = %q, %v; want right, true", edge, ok)
	}

	clk.Add(5 * time.Second)
	if _, ok := feed(t, d, move(screen-1)); ok {
		t.Fatal("triggered inside the cooldown")
	}

	clk.Add(6 * time.Second)
	if edge, ok := feed(t, d, move(0)); !ok || edge != types.EdgeLeft {
		t.Fatalf("after cooldown = %q, %v; want left, true", edge, ok)
	}
}

func TestDetectorIgnoresMovesWithoutDragOrFocus(t *testing.T) {
	clk := clock.NewMock()
	d := NewDetector(DefaultConfig(), clk)

	clk.Add(time.Second)
	if _, ok := feed(t, d, move(0)); ok {
		t.Fatal("triggered without a press")
	}

	feed(t, d, Pointer{Kind: KindPress})
	clk.Add(time.Second)
	unfocused := move(0)
	unfocused.BrowserFocused = false
	if _, ok := feed(t, d, unfocused); ok {
		t.Fatal("triggered while the browser was not focused")
	}

	feed(t, d, Pointer{Kind: KindRelease})
	if _, ok := feed(t, d, move(0)); ok {
		t.Fatal("triggered after release")
	}
}

func TestDetectorRejectsBadEvents(t *testing.T) {
	d := NewDetector(DefaultConfig(), clock.NewMock())
	if _, _, err := d.Feed(Pointer{Kind: "scroll"}); !errors.Is(err, ErrInvalidPointer) {
		t.Fatalf("Feed(scroll) error = %v; want %v", err, ErrInvalidPointer)
	}
	d.Feed(Pointer{Kind: KindPress})
	if _, _, err := d.Feed(Pointer{Kind: KindMove, X: 1, BrowserFocused: true}); !errors.Is(err, ErrInvalidPointer) {
		t.Fatalf("Feed(move without screen width) error = %v; want %v", err, ErrInvalidPointer)
	}
}
