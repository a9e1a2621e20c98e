package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion identifies the extension message set below: both directions
// carry an edge field. Version 1 (untagged get_tabs, tabs without edge) is not
// spoken, although edge-less tab reports are still accepted by the gateway.
const ProtocolVersion = 2

const (
	ActionGetTabs = "get_tabs"
	ActionTabs    = "tabs"
)

// ErrUnknownAction is returned for well-formed messages with an action the
// relay does not understand.
var ErrUnknownAction = errors.New("unknown action")

// ServerMessage is sent from the relay to a browser extension.
type ServerMessage struct {
	Action string `json:"action"`
	Edge   Edge   `json:"edge,omitempty"`
}

// GetTabsRequest builds the request sent to extensions when a gesture fires.
func GetTabsRequest(edge Edge) ServerMessage {
	return ServerMessage{Action: ActionGetTabs, Edge: edge}
}

// ClientMessage is sent from a browser extension to the relay.
type ClientMessage struct {
	Action string  `json:"action"`
	Tabs   TabList `json:"tabs"`
	Edge   Edge    `json:"edge,omitempty"`
}

// DecodeClientMessage parses one extension frame. An edge value, when present,
// must be a known edge.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Action != ActionTabs {
		return ClientMessage{}, fmt.Errorf("decode client message: %w %q", ErrUnknownAction, msg.Action)
	}
	if msg.Edge != "" {
		edge, err := ParseEdge(string(msg.Edge))
		if err != nil {
			return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
		}
		msg.Edge = edge
	}
	return msg, nil
}
