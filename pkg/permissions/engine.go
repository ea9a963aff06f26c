package permissions

import "context"

// Engine computes effective permission sets and rate quotas. The group cache
// is passed in explicitly; there is no process-global state.
type Engine struct {
	Groups *Cache

	// AnonymousPermissions is the fixed default set for unauthenticated
	// callers (public read surface).
	AnonymousPermissions []string

	// DefaultRateLimit applies to authenticated identities whose groups
	// carry no rate limit; AnonymousRateLimit to everyone else.
	DefaultRateLimit   int
	AnonymousRateLimit int
}

// PermissionsFor derives the caller's permission set for this request.
// Suspended and deactivated users yield the empty set regardless of group
// membership. An OAuth scope restriction intersects the user's permissions,
// with "*" passing everything through.
func (e *Engine) PermissionsFor(ctx context.Context, id Identity) Set {
	if !id.Authenticated() {
		return NewSet(e.AnonymousPermissions...)
	}
	if !id.Effective() {
		return Set{}
	}
	perms := Set{}
	if id.User != nil {
		for _, gid := range id.User.Groups {
			g, ok := e.Groups.Group(ctx, gid)
			if !ok {
				continue
			}
			for _, p := range g.Permissions {
				perms[p] = struct{}{}
			}
		}
	}
	if id.Client != nil && id.Client.Scopes != nil {
		perms = intersectScopes(perms, id.Client.Scopes)
	}
	return perms
}

// RateLimitFor is the hourly quota for the identity: the maximum rate limit
// across the user's groups, the default for authenticated users without one,
// or the anonymous constant.
func (e *Engine) RateLimitFor(ctx context.Context, id Identity) int {
	if !id.Authenticated() || !id.Effective() {
		return e.AnonymousRateLimit
	}
	limit := 0
	if id.User != nil {
		for _, gid := range id.User.Groups {
			g, ok := e.Groups.Group(ctx, gid)
			if !ok {
				continue
			}
			if g.RateLimit > limit {
				limit = g.RateLimit
			}
		}
	}
	if limit <= 0 {
		limit = e.DefaultRateLimit
	}
	return limit
}
