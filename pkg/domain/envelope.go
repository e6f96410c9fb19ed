package domain

import (
	"encoding/json"
	"fmt"
)

// Event names of the sync wire contract.
const (
	EventMapUpdated   = "map_updated"
	EventUpdateMap    = "update_map"
	EventError        = "error"
	EventConnect      = "connect"
	EventConnectError = "connect_error"

	// EventRequestMap asks the server for a fresh map_updated, e.g. after a
	// reconnect.
	EventRequestMap = "request_map"
)

// Envelope is one message on a sync channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UpdateMap is the payload of an update_map event. Changes carries exactly
// one patch; Map is an optional full copy for reference only.
type UpdateMap struct {
	Map     *Node `json:"map,omitempty"`
	Changes Patch `json:"changes"`
}

// ErrorMessage is the payload of an error event.
type ErrorMessage struct {
	Message string `json:"message"`
}

// ConnState is a connectivity state exposed to the UI layer.
type ConnState string

const (
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
	ConnReconnecting ConnState = "reconnecting"
)

// NewUpdateMapEnvelope wraps a patch in an update_map event.
func NewUpdateMapEnvelope(p Patch, tree *Node) (Envelope, error) {
	return newEnvelope(EventUpdateMap, UpdateMap{Map: tree, Changes: p})
}

// NewMapUpdatedEnvelope wraps a full tree in a map_updated event.
func NewMapUpdatedEnvelope(tree *Node) (Envelope, error) {
	return newEnvelope(EventMapUpdated, tree)
}

// NewErrorEnvelope wraps a message in an error event.
func NewErrorEnvelope(message string) Envelope {
	env, _ := newEnvelope(EventError, ErrorMessage{Message: message})
	return env
}

// NewRequestMapEnvelope builds a request_map event.
func NewRequestMapEnvelope() Envelope {
	return Envelope{Event: EventRequestMap}
}

func newEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// DecodeUpdate reads the update_map payload.
func (e Envelope) DecodeUpdate() (UpdateMap, error) {
	var u UpdateMap
	if e.Event != EventUpdateMap {
		return u, fmt.Errorf("expected %s, got %s", EventUpdateMap, e.Event)
	}
	var raw struct {
		Map     any   `json:"map"`
		Changes Patch `json:"changes"`
	}
	if err := json.Unmarshal(e.Data, &raw); err != nil {
		return u, fmt.Errorf("failed to decode %s: %w", e.Event, err)
	}
	tree, err := DecodeTree(raw.Map)
	if err != nil {
		return u, err
	}
	u.Map = tree
	u.Changes = raw.Changes
	return u, nil
}

// DecodeMap reads the map_updated payload. Legacy tree shapes are accepted.
func (e Envelope) DecodeMap() (*Node, error) {
	if e.Event != EventMapUpdated {
		return nil, fmt.Errorf("expected %s, got %s", EventMapUpdated, e.Event)
	}
	if len(e.Data) == 0 {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(e.Data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", e.Event, err)
	}
	return DecodeTree(raw)
}

// DecodeError reads the error payload.
func (e Envelope) DecodeError() string {
	var m ErrorMessage
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return string(e.Data)
	}
	return m.Message
}
