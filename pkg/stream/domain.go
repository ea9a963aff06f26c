package stream

import (
	"context"
	"log"
	"sync"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
)

type domainClient struct {
	sender   Sender
	identity permissions.Identity
}

// DomainBus delivers domain events (resource created/updated/deleted) to
// every authenticated client whose effective permission set intersects the
// event's required permission. No per-client subscription bookkeeping:
// eligibility is permission-driven so "live update" consumers stay current.
type DomainBus struct {
	Perms *permissions.Engine

	mu      sync.RWMutex
	clients map[string]domainClient
}

func NewDomainBus(perms *permissions.Engine) *DomainBus {
	return &DomainBus{Perms: perms, clients: map[string]domainClient{}}
}

func (b *DomainBus) Add(s Sender, identity permissions.Identity) {
	if !identity.Authenticated() {
		return
	}
	b.mu.Lock()
	b.clients[s.ID()] = domainClient{sender: s, identity: identity}
	b.mu.Unlock()
}

func (b *DomainBus) Remove(id string) {
	b.mu.Lock()
	delete(b.clients, id)
	b.mu.Unlock()
}

// Publish fans evt out to clients holding one of the required permissions.
// Permission sets are recomputed at publish time, so group changes and
// suspensions take effect without reconnecting. Sends are independent;
// failures are logged and skipped.
func (b *DomainBus) Publish(ctx context.Context, evt Event, required permissions.Set) {
	b.mu.RLock()
	candidates := make([]domainClient, 0, len(b.clients))
	for _, c := range b.clients {
		candidates = append(candidates, c)
	}
	b.mu.RUnlock()
	for _, c := range candidates {
		perms := b.Perms.PermissionsFor(ctx, c.identity)
		if !permissions.Granted(required, perms) {
			continue
		}
		if err := c.sender.Send(evt); err != nil {
			log.Printf("stream: domain event %s to %s failed: %v", evt.Name, c.sender.ID(), err)
		}
	}
}
