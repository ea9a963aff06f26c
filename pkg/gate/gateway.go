package gate

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/jsonapi"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/query"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/ratelimit"
)

// Authenticator resolves request credentials into an identity. Requests
// without credentials resolve to the anonymous identity; only present but
// invalid credentials fail.
type Authenticator interface {
	Authenticate(c *Context) (permissions.Identity, error)
}

// Resolver looks up handlers per transport key space.
type Resolver interface {
	ResolveHTTP(method, pattern string) (Handler, error)
	ResolveWS(tuple []string) (Handler, error)
}

// Response is the transport-agnostic outcome of one pipeline run. Transports
// serialize it: HTTP writes status/headers/body, WebSocket wraps it in a
// [state, status, body] reply.
type Response struct {
	Status int
	Body   []byte
	Rate   ratelimit.Decision
	// ContentType overrides the envelope media type for raw results.
	ContentType string
	// NoBody is set for no-content results.
	NoBody bool
	// Err is the rendered taxonomy error, when there is one. Its
	// correlation id links the generic internal-error body to the
	// server-side audit trail.
	Err *apierrors.APIError
}

// Gateway runs the shared request pipeline for every transport.
type Gateway struct {
	Auth    Authenticator
	Perms   *permissions.Engine
	Limiter ratelimit.Limiter
	Routes  Resolver

	// MaxPageSize caps collection page sizes for anonymous callers;
	// MaxPageSizeAuth for authenticated ones.
	MaxPageSize     int
	MaxPageSizeAuth int
}

func (g *Gateway) maxPageSize(id permissions.Identity) int {
	if id.Authenticated() && id.Effective() && g.MaxPageSizeAuth > 0 {
		return g.MaxPageSizeAuth
	}
	return g.MaxPageSize
}

// Run executes adapt → authenticate → rate-limit → resolve → handle →
// render for one context. It never panics and never returns a raw
// collaborator error: everything is rendered through the document error
// path.
func (g *Gateway) Run(c *Context) Response {
	if c.adaptErr != nil {
		return g.fail(c, c.adaptErr)
	}

	identity, err := g.Auth.Authenticate(c)
	if err != nil {
		resp := g.fail(c, apierrors.From(err))
		// Rejected credentials still echo quota state: peek the anonymous
		// tier for the caller's address without charging it.
		anon := permissions.Anonymous()
		resp.Rate = g.Limiter.Check(RateKey(anon, c.RemoteAddr), g.Perms.RateLimitFor(c.Context(), anon), false)
		return resp
	}
	c.Identity = identity
	c.Permissions = g.Perms.PermissionsFor(c.Context(), identity)

	decision := g.Limiter.Check(RateKey(identity, c.RemoteAddr), g.Perms.RateLimitFor(c.Context(), identity), c.charge)
	if decision.Exceeded {
		resp := g.fail(c, apierrors.TooManyRequests("rate limit exceeded"))
		resp.Rate = decision
		return resp
	}

	handler, err := g.resolve(c)
	if err != nil {
		resp := g.fail(c, apierrors.From(err))
		resp.Rate = decision
		return resp
	}

	desc, err := query.Parse(c.Query, g.maxPageSize(identity))
	if err != nil {
		resp := g.fail(c, apierrors.From(err))
		resp.Rate = decision
		return resp
	}
	c.Descriptor = desc

	result, err := g.dispatch(handler, c)
	if err != nil {
		resp := g.fail(c, apierrors.From(err))
		resp.Rate = decision
		return resp
	}

	resp := g.render(c, result)
	resp.Rate = decision
	return resp
}

func (g *Gateway) resolve(c *Context) (Handler, error) {
	if c.Transport == TransportWebSocket {
		return g.Routes.ResolveWS(c.RouteTuple)
	}
	return g.Routes.ResolveHTTP(c.Method, c.Pattern)
}

// dispatch isolates handler execution: a panicking collaborator becomes an
// internal error with a correlation id instead of tearing down the
// transport goroutine.
func (g *Gateway) dispatch(handler Handler, c *Context) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apierrors.Internal(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(c)
}

func (g *Gateway) render(c *Context, result Result) Response {
	switch result.kind {
	case kindNoContent:
		return Response{Status: http.StatusNoContent, NoBody: true}
	case kindRaw:
		return Response{Status: result.status, Body: result.raw, ContentType: result.contentType}
	default:
		doc := result.doc
		if doc == nil {
			doc = jsonapi.MetaOnly(jsonapi.Meta{}, c.SelfURL)
		}
		status := result.status
		if status == 0 {
			status = http.StatusOK
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return g.fail(c, apierrors.Internal(err))
		}
		return Response{Status: doc.Status(status), Body: body}
	}
}

func (g *Gateway) fail(c *Context, apiErr *apierrors.APIError) Response {
	doc := jsonapi.Errors(c.SelfURL, apiErr)
	body, _ := json.Marshal(doc)
	return Response{Status: apiErr.Status, Body: body, Err: apiErr}
}

// RateKey partitions quota buckets: authenticated identities by user or
// client id, anonymous callers by remote address.
func RateKey(id permissions.Identity, remoteAddr string) string {
	switch {
	case id.User != nil:
		return "user:" + id.User.ID
	case id.Client != nil:
		return "user:" + id.Client.ID
	default:
		return "ip:" + remoteAddr
	}
}

// RemoteIP is the peer address used for anonymous rate buckets.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func paramFromRequest(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
