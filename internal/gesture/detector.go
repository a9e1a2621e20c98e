// Package gesture turns raw pointer events into edge triggers. It does not
// hook the OS; an external helper feeds it events.
package gesture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dgnsrekt/tableap/internal/types"
)

// ErrInvalidPointer wraps every rejection of a malformed pointer event.
var ErrInvalidPointer = errors.New("invalid pointer event")

// Pointer event kinds.
const (
	KindPress   = "press"
	KindRelease = "release"
	KindMove    = "move"
)

// Config holds the detection thresholds.
type Config struct {
	// MinHold is how long the button must be held before an edge counts.
	MinHold time.Duration
	// EdgeBand is the width in pixels of the trigger zone at each side.
	EdgeBand float64
	// Cooldown is the minimum time between two triggers.
	Cooldown time.Duration
}

// DefaultConfig matches the thresholds the desktop hook has always used.
func DefaultConfig() Config {
	return Config{
		MinHold:  300 * time.Millisecond,
		EdgeBand: 15,
		Cooldown: 10 * time.Second,
	}
}

// Pointer is one event from the pointer hook.
type Pointer struct {
	Kind        string  `json:"type"`
	X           float64 `json:"x,omitempty"`
	ScreenWidth float64 `json:"screen_width,omitempty"`
	// BrowserFocused reports whether the foreground window is the browser.
	// Triggers only fire while it is.
	BrowserFocused bool `json:"browser_focused,omitempty"`
}

// Detector recognises "drag the browser window into a screen edge".
type Detector struct {
	cfg   Config
	clock clock.Clock

	mu          sync.Mutex
	dragging    bool
	dragStart   time.Time
	lastTrigger time.Time
}

func NewDetector(cfg Config, clk clock.Clock) *Detector {
	if clk == nil {
		clk = clock.New()
	}
	return &Detector{cfg: cfg, clock: clk}
}

// Feed processes one pointer event and reports the edge if it completed a
// gesture.
func (d *Detector) Feed(p Pointer) (types.Edge, bool, error) {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	switch p.Kind {
	case KindPress:
		d.dragging = true
		d.dragStart = now
		return "", false, nil
	case KindRelease:
		d.dragging = false
		return "", false, nil
	case KindMove:
	default:
		return "", false, fmt.Errorf("gesture: unknown pointer event type %q: %w", p.Kind, ErrInvalidPointer)
	}

	if !d.dragging || !p.BrowserFocused {
		return "", false, nil
	}
	if p.ScreenWidth <= 0 {
		return "", false, fmt.Errorf("gesture: screen_width must be positive: %w", ErrInvalidPointer)
	}

	var edge types.Edge
	switch {
	case p.X <= d.cfg.EdgeBand:
		edge = types.EdgeLeft
	case p.X >= p.ScreenWidth-d.cfg.EdgeBand:
		edge = types.EdgeRight
	default:
		return "", false, nil
	}

	if now.Sub(d.dragStart) <= d.cfg.MinHold {
		return "", false, nil
	}
	if !d.lastTrigger.IsZero() && now.Sub(d.lastTrigger) <= d.cfg.Cooldown {
		return "", false, nil
	}
	d.lastTrigger = now
	return edge, true, nil
}
