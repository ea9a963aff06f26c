package statebus

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/stream"
)

// wireEvent is the topic payload for one domain event.
type wireEvent struct {
	Event      string          `json:"event"`
	SenderID   string          `json:"sender"`
	ResourceID string          `json:"resource"`
	Permission string          `json:"permission"`
	Document   json.RawMessage `json:"document,omitempty"`
}

// Bridge pumps domain events from a Consumer into the DomainBus.
type Bridge struct {
	Consumer Consumer
	Bus      *stream.DomainBus
}

// Run blocks until ctx is cancelled or the consumer fails terminally.
// Undecodable messages are logged and skipped; a poisoned message must not
// stall live updates.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		msg, err := b.Consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		var evt wireEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.Event == "" {
			log.Printf("statebus: dropping undecodable event: %v", err)
			continue
		}
		b.Bus.Publish(ctx,
			stream.NewEvent(evt.Event, evt.SenderID, evt.ResourceID, evt.Document),
			permissions.NewSet(evt.Permission),
		)
	}
}
