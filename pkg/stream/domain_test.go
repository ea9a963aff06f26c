package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
)

func domainEngine(t *testing.T) *permissions.Engine {
	t.Helper()
	cache := permissions.NewCache(permissions.StaticGroupSource{
		{ID: "rat", Permissions: []string{"rescues.read"}},
		{ID: "dispatch", Permissions: []string{"rescues.write"}},
	}, time.Hour)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return &permissions.Engine{Groups: cache, AnonymousRateLimit: 10, DefaultRateLimit: 100}
}

func TestDomainBusFiltersByPermission(t *testing.T) {
	bus := NewDomainBus(domainEngine(t))
	reader := &recordingSender{id: "reader"}
	writer := &recordingSender{id: "writer"}
	bus.Add(reader, permissions.Identity{User: &permissions.User{ID: "u1", Groups: []string{"rat"}}})
	bus.Add(writer, permissions.Identity{User: &permissions.User{ID: "u2", Groups: []string{"dispatch"}}})

	bus.Publish(context.Background(),
		NewEvent("rescue.created", "u9", "r1", nil),
		permissions.NewSet("rescues.read"))

	if got := reader.received(); len(got) != 1 {
		t.Fatalf("permitted client missed event: %+v", got)
	}
	if got := writer.received(); len(got) != 0 {
		t.Fatalf("unpermitted client received event: %+v", got)
	}
}

func TestDomainBusDeliversRegardlessOfSubscription(t *testing.T) {
	// DomainBus has no subscription bookkeeping at all: permission is the
	// only gate.
	bus := NewDomainBus(domainEngine(t))
	s := &recordingSender{id: "s"}
	bus.Add(s, permissions.Identity{User: &permissions.User{ID: "u1", Groups: []string{"rat"}}})

	bus.Publish(context.Background(),
		NewEvent("rescue.deleted", "", "r2", nil),
		permissions.NewSet("rescues.read"))
	if got := s.received(); len(got) != 1 {
		t.Fatalf("client missed domain event: %+v", got)
	}
}

func TestDomainBusIgnoresAnonymous(t *testing.T) {
	bus := NewDomainBus(domainEngine(t))
	s := &recordingSender{id: "anon"}
	bus.Add(s, permissions.Anonymous())

	bus.Publish(context.Background(),
		NewEvent("rescue.created", "", "r1", nil),
		permissions.Set{})
	if got := s.received(); len(got) != 0 {
		t.Fatalf("anonymous client registered on domain bus: %+v", got)
	}
}

func TestDomainBusSuspensionTakesEffectAtPublishTime(t *testing.T) {
	bus := NewDomainBus(domainEngine(t))
	user := &permissions.User{ID: "u1", Groups: []string{"rat"}}
	s := &recordingSender{id: "s"}
	bus.Add(s, permissions.Identity{User: user})

	user.Suspended = true
	bus.Publish(context.Background(),
		NewEvent("rescue.created", "", "r1", nil),
		permissions.NewSet("rescues.read"))
	if got := s.received(); len(got) != 0 {
		t.Fatalf("suspended client received domain event: %+v", got)
	}
}

func TestDomainBusRemove(t *testing.T) {
	bus := NewDomainBus(domainEngine(t))
	s := &recordingSender{id: "s"}
	bus.Add(s, permissions.Identity{User: &permissions.User{ID: "u1", Groups: []string{"rat"}}})
	bus.Remove("s")

	bus.Publish(context.Background(),
		NewEvent("rescue.created", "", "r1", nil),
		permissions.NewSet("rescues.read"))
	if got := s.received(); len(got) != 0 {
		t.Fatalf("removed client received event: %+v", got)
	}
}

func TestEventMarshalWire(t *testing.T) {
	evt := NewEvent("rescue.updated", "u1", "r1", map[string]any{"status": "open"})
	raw, err := evt.MarshalWire()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if len(frame) != 4 {
		t.Fatalf("unexpected frame arity: %s", raw)
	}
	if string(frame[0]) != `"rescue.updated"` || string(frame[1]) != `"u1"` || string(frame[2]) != `"r1"` {
		t.Fatalf("unexpected frame head: %s", raw)
	}
}

func TestEventMarshalWireNilDocument(t *testing.T) {
	raw, err := NewEvent("tick", "", "", nil).MarshalWire()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if string(frame[3]) != "null" {
		t.Fatalf("nil document not framed as null: %s", raw)
	}
}
