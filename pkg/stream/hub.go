package stream

import (
	"log"
	"sync"
)

// SubscribeAll is the subscription wildcard used by SSE streams, which have
// no subscribe operation of their own.
const SubscribeAll = "*"

type hubClient struct {
	sender Sender
	subs   map[string]struct{}
}

// Hub is the application-broadcast bus. Clients register on connect with an
// empty subscription set, mutate it with Subscribe/Unsubscribe, and are
// discarded on disconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*hubClient
}

func NewHub() *Hub {
	return &Hub{clients: map[string]*hubClient{}}
}

func (h *Hub) Add(s Sender, subs ...string) {
	c := &hubClient{sender: s, subs: map[string]struct{}{}}
	for _, name := range subs {
		c.subs[name] = struct{}{}
	}
	h.mu.Lock()
	h.clients[s.ID()] = c
	h.mu.Unlock()
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

func (h *Hub) Subscribe(id string, events ...string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		for _, name := range events {
			c.subs[name] = struct{}{}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Unsubscribe(id string, events ...string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		for _, name := range events {
			delete(c.subs, name)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Subscriptions(id string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.subs))
	for name := range c.subs {
		out = append(out, name)
	}
	return out
}

// Publish delivers evt to every client subscribed to its name. The eligible
// set is snapshotted under the read lock and sends happen outside it, so a
// client disconnecting mid-broadcast cannot abort delivery to the rest.
// Failures are logged, never propagated.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	eligible := make([]Sender, 0, len(h.clients))
	for _, c := range h.clients {
		if _, ok := c.subs[evt.Name]; ok {
			eligible = append(eligible, c.sender)
			continue
		}
		if _, ok := c.subs[SubscribeAll]; ok {
			eligible = append(eligible, c.sender)
		}
	}
	h.mu.RUnlock()
	for _, s := range eligible {
		if err := s.Send(evt); err != nil {
			log.Printf("stream: broadcast to %s failed: %v", s.ID(), err)
		}
	}
}
