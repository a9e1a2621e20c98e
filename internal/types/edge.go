package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEdge is returned for any edge name other than left or right.
var ErrUnknownEdge = errors.New("unknown edge")

// Edge is the logical screen side a peer machine sits on. Routing uses the
// edge, never the peer's network address.
type Edge string

const (
	EdgeLeft  Edge = "left"
	EdgeRight Edge = "right"
)

// Edges lists every supported edge in display order.
var Edges = []Edge{EdgeLeft, EdgeRight}

// ParseEdge normalises s and rejects anything that is not a known edge.
func ParseEdge(s string) (Edge, error) {
	e := Edge(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("%w %q (want left or right)", ErrUnknownEdge, s)
	}
	return e, nil
}

// Valid reports whether e is one of the supported edges.
func (e Edge) Valid() bool {
	return e == EdgeLeft || e == EdgeRight
}

func (e Edge) String() string { return string(e) }

// GestureEvent is the trigger emitted when the user drags a browser window
// against a screen edge.
type GestureEvent struct {
	Edge Edge `json:"edge"`
}
