// Package route maps transport route keys to handlers. The registry is
// populated once during startup from an explicit registration list and is
// read-only afterwards, so request-path lookups take no lock.
package route

import (
	"fmt"
	"strings"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/gate"
)

// Registry holds two independent key spaces that may share handler
// references: HTTP method+path and WebSocket route tuples.
type Registry struct {
	http   map[string]gate.Handler
	ws     map[string]gate.Handler
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{
		http: map[string]gate.Handler{},
		ws:   map[string]gate.Handler{},
	}
}

func httpKey(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(path)
}

func wsKey(tuple []string) string {
	return strings.Join(tuple, ":")
}

// RegisterHTTP binds an HTTP method+path to a handler. Duplicate keys and
// post-seal registration are programming errors and panic at startup.
func (r *Registry) RegisterHTTP(method, path string, h gate.Handler) {
	r.register(r.http, httpKey(method, path), h)
}

// RegisterWS binds a WebSocket route tuple (e.g. ["rescues","search"]) to a
// handler.
func (r *Registry) RegisterWS(tuple []string, h gate.Handler) {
	if len(tuple) == 0 {
		panic("route: empty websocket route tuple")
	}
	r.register(r.ws, wsKey(tuple), h)
}

func (r *Registry) register(space map[string]gate.Handler, key string, h gate.Handler) {
	if r.sealed {
		panic(fmt.Sprintf("route: registration after seal: %s", key))
	}
	if h == nil {
		panic(fmt.Sprintf("route: nil handler for %s", key))
	}
	if _, exists := space[key]; exists {
		panic(fmt.Sprintf("route: duplicate route key: %s", key))
	}
	space[key] = h
}

// Seal marks the end of startup registration. Lookups after Seal are safe
// for unsynchronized concurrent use.
func (r *Registry) Seal() { r.sealed = true }

func (r *Registry) ResolveHTTP(method, path string) (gate.Handler, error) {
	h, ok := r.http[httpKey(method, path)]
	if !ok {
		return nil, apierrors.NotFound(fmt.Sprintf("no route for %s %s", method, path))
	}
	return h, nil
}

func (r *Registry) ResolveWS(tuple []string) (gate.Handler, error) {
	h, ok := r.ws[wsKey(tuple)]
	if !ok {
		return nil, apierrors.NotFound(fmt.Sprintf("no route for [%s]", strings.Join(tuple, ",")))
	}
	return h, nil
}
