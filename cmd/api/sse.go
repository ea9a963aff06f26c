package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/gate"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/httpx"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/stream"
)

// sseClient bridges the fan-out buses to one Server-Sent Events response.
// Send queues without blocking the publisher; a client that cannot drain
// its buffer is dropped instead of stalling the broadcast.
type sseClient struct {
	id     string
	events chan stream.Event
}

func (c *sseClient) ID() string { return c.id }

func (c *sseClient) Send(evt stream.Event) error {
	select {
	case c.events <- evt:
		return nil
	default:
		return fmt.Errorf("sse client %s buffer full", c.id)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Stream attach authenticates once and peeks the quota without charging
	// it, the same sequence as the WebSocket handshake.
	probe := gate.FromHTTP(r, "/events", s.MaxBodyBytes)
	identity, err := s.Auth.Authenticate(probe)
	if err != nil {
		s.writeHandshakeError(w, "/events", apierrors.From(err))
		return
	}
	decision := s.Gateway.Limiter.Check(
		gate.RateKey(identity, gate.RemoteIP(r)),
		s.Perms.RateLimitFor(r.Context(), identity),
		false,
	)
	if decision.Exceeded {
		httpx.RateLimitHeaders(w, decision)
		s.writeHandshakeError(w, "/events", apierrors.TooManyRequests("rate limit exceeded"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeHandshakeError(w, "/events", apierrors.Internal(fmt.Errorf("response writer does not support streaming")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := &sseClient{
		id:     uuid.NewString(),
		events: make(chan stream.Event, 64),
	}
	// SSE has no subscribe operation, so streams receive every application
	// broadcast.
	s.Hub.Add(client, stream.SubscribeAll)
	if identity.Authenticated() {
		s.Domain.Add(client, identity)
	}
	s.Metrics.AddSSEStreams(1)
	defer func() {
		s.Hub.Remove(client.id)
		s.Domain.Remove(client.id)
		s.Metrics.AddSSEStreams(-1)
	}()

	if err := writeSSEFrame(w, stream.NewEvent("version", "", "", s.versionMeta())); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.events:
			if err := writeSSEFrame(w, evt); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, evt stream.Event) error {
	doc := evt.Document
	if doc == nil {
		doc = json.RawMessage("null")
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, doc)
	return err
}
