// Package stream fans server-initiated events out to connected transport
// clients. Two explicit buses exist: Hub carries free-form application
// broadcasts filtered by each client's subscription set, and DomainBus
// carries domain events (resource lifecycle) delivered to every
// authenticated client whose permissions intersect the event's required
// permission, regardless of subscription. Both are passed by reference;
// there is no process-global emitter.
package stream

import (
	"encoding/json"
	"time"
)

// Event is one broadcast payload. On the WebSocket wire it is framed as
// [event, senderId, resourceId, document].
type Event struct {
	Name       string
	SenderID   string
	ResourceID string
	Document   json.RawMessage
	At         time.Time
}

func NewEvent(name, senderID, resourceID string, document any) Event {
	var raw json.RawMessage
	if document != nil {
		b, _ := json.Marshal(document)
		raw = b
	}
	return Event{
		Name:       name,
		SenderID:   senderID,
		ResourceID: resourceID,
		Document:   raw,
		At:         time.Now().UTC(),
	}
}

// MarshalWire frames the event in the unsolicited-broadcast message shape.
func (e Event) MarshalWire() ([]byte, error) {
	doc := e.Document
	if doc == nil {
		doc = json.RawMessage("null")
	}
	return json.Marshal([]any{e.Name, e.SenderID, e.ResourceID, doc})
}

// Sender is one connected transport client. Send must be safe for
// concurrent use; a failed send affects only that client.
type Sender interface {
	ID() string
	Send(evt Event) error
}
