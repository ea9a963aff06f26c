// Package gate normalizes inbound requests from every transport into one
// context shape and runs them through the shared pipeline: authenticate,
// rate-limit, dispatch, render. A WebSocket connection hosts many sequential
// contexts, one per message; an HTTP request maps to exactly one.
package gate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/query"
)

const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Context is the uniform request representation handed to handlers.
type Context struct {
	ctx       context.Context
	Transport string

	// HTTP surface.
	Method  string
	Pattern string // registered route pattern, e.g. "/rescues/{id}"
	Request *http.Request

	// WebSocket surface.
	RouteTuple []string
	// State is the client-chosen correlation token, echoed back verbatim.
	State json.RawMessage

	Query      url.Values
	Body       json.RawMessage
	RemoteAddr string
	SelfURL    string

	// Filled in by the pipeline before dispatch.
	Identity    permissions.Identity
	Permissions permissions.Set
	Descriptor  query.Descriptor

	// Values is the mutable per-request state bag.
	Values map[string]any

	// charge marks whether this context counts against the hourly quota.
	// Connection-time checks peek without charging.
	charge bool

	// adaptErr records malformed input found during adaptation; the
	// pipeline renders it instead of dispatching.
	adaptErr *apierrors.APIError
}

func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Param is a chi-style path parameter accessor populated by the HTTP
// transport; WS routes carry ids in the route tuple instead.
func (c *Context) Param(name string) string {
	if c.Request == nil {
		return ""
	}
	return paramFromRequest(c.Request, name)
}

// RequireAuth is the guard for endpoints that refuse anonymous callers.
func (c *Context) RequireAuth() error {
	if !c.Identity.Authenticated() {
		return apierrors.Unauthenticated("authentication required")
	}
	return nil
}

// Require refuses the request unless the caller holds one of the given
// permissions.
func (c *Context) Require(perms ...string) error {
	if err := c.RequireAuth(); err != nil {
		return err
	}
	if !permissions.Granted(permissions.NewSet(perms...), c.Permissions) {
		return apierrors.Forbidden("insufficient permission")
	}
	return nil
}

// DecodeBody unmarshals the request payload into v.
func (c *Context) DecodeBody(v any) error {
	if len(c.Body) == 0 {
		return apierrors.BadRequest("request body required")
	}
	if err := json.Unmarshal(c.Body, v); err != nil {
		return apierrors.BadRequest("malformed request body")
	}
	return nil
}

// FromHTTP adapts an HTTP request into a Context. Body read failures and
// oversized payloads produce an error context so rendering stays uniform.
func FromHTTP(r *http.Request, pattern string, maxBody int64) *Context {
	// A caller abort must not force-kill an in-flight handler: side effects
	// (persistence writes) are not safely interruptible, so the handler
	// runs to completion and the unusable response is simply dropped.
	c := &Context{
		ctx:        context.WithoutCancel(r.Context()),
		Transport:  TransportHTTP,
		Method:     r.Method,
		Pattern:    pattern,
		Request:    r,
		Query:      r.URL.Query(),
		RemoteAddr: RemoteIP(r),
		SelfURL:    r.URL.Path,
		Values:     map[string]any{},
		charge:     true,
	}
	if r.URL.RawQuery != "" {
		c.SelfURL += "?" + r.URL.RawQuery
	}
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			c.adaptErr = apierrors.BadRequest("unreadable request body")
			return c
		}
		if int64(len(body)) > maxBody {
			c.adaptErr = apierrors.BadRequest("request body too large")
			return c
		}
		if len(body) > 0 {
			c.Body = body
		}
	}
	return c
}

// wsRequest is the wire shape of one WebSocket request message:
// [state, routeTuple, query, body].
type wsRequest struct {
	State json.RawMessage
	Route []string
	Query map[string]string
	Body  json.RawMessage
}

func (m *wsRequest) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 2 {
		return io.ErrUnexpectedEOF
	}
	m.State = parts[0]
	if err := json.Unmarshal(parts[1], &m.Route); err != nil {
		return err
	}
	if len(parts) > 2 && string(parts[2]) != "null" {
		if err := json.Unmarshal(parts[2], &m.Query); err != nil {
			return err
		}
	}
	if len(parts) > 3 && string(parts[3]) != "null" {
		m.Body = parts[3]
	}
	return nil
}

// FromWSMessage adapts one WebSocket frame into a Context. conn identity and
// remote address come from the hosting connection; malformed or oversized
// frames yield an error context rather than tearing down the connection.
func FromWSMessage(ctx context.Context, raw []byte, remoteAddr string, maxBody int) *Context {
	c := &Context{
		ctx:        ctx,
		Transport:  TransportWebSocket,
		RemoteAddr: remoteAddr,
		Values:     map[string]any{},
		charge:     true,
	}
	if maxBody > 0 && len(raw) > maxBody {
		c.adaptErr = apierrors.BadRequest("message too large")
		return c
	}
	var msg wsRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.adaptErr = apierrors.BadRequest("malformed request message")
		return c
	}
	c.State = msg.State
	c.RouteTuple = msg.Route
	c.Body = msg.Body
	c.Query = url.Values{}
	for k, v := range msg.Query {
		c.Query.Set(k, v)
	}
	c.SelfURL = "/" + joinTuple(msg.Route)
	if encoded := c.Query.Encode(); encoded != "" {
		c.SelfURL += "?" + encoded
	}
	return c
}

func joinTuple(tuple []string) string {
	out := ""
	for i, part := range tuple {
		if i > 0 {
			out += "/"
		}
		out += part
	}
	return out
}
