// Package transport serves the glue's JSON-over-WebSocket protocol to
// remote test clients: raised wallet events flow out, resolving
// commands flow in.
package transport

import (
	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
)

// Message is the single wire envelope. Type selects which fields are
// meaningful:
//
//	"event"   (server→client): Event, ID, Data
//	"resolve" (client→server): Event, ID, Action, Params
//	"result"  (server→client): ID, OK, Error
type Message struct {
	Type   string         `json:"type"`
	Event  string         `json:"event,omitempty"`
	ID     string         `json:"id,omitempty"`
	Action string         `json:"action,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	OK     *bool          `json:"ok,omitempty"`
	Error  string         `json:"error,omitempty"`
}

const (
	TypeEvent   = "event"
	TypeResolve = "resolve"
	TypeResult  = "result"
)

// EventMessage renders a raised event for the wire.
func EventMessage(ev event.Event) Message {
	return Message{
		Type:  TypeEvent,
		Event: string(ev.Kind),
		ID:    ev.CorrelationID,
		Data:  ev.Data,
	}
}

// ResultMessage renders the outcome of a resolve command.
func ResultMessage(id string, err error) Message {
	ok := err == nil
	msg := Message{Type: TypeResult, ID: id, OK: &ok}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}
