// Package permissions resolves caller identities into permission sets and
// enforces field-level write tiers. Permission sets are recomputed per
// request; nothing here is cached across requests except the group
// definitions, which live in a reloadable Cache with an explicit staleness
// window.
package permissions

import (
	"sort"
	"strings"
)

// Wildcard matches every permission when present in an OAuth scope list.
const Wildcard = "*"

type User struct {
	ID          string
	Groups      []string
	Suspended   bool
	Deactivated bool
}

// Client is an OAuth client credential. When it acts on behalf of a user the
// user's permissions are intersected with Scopes.
type Client struct {
	ID     string
	UserID string
	Scopes []string
}

// Identity is the party making a request. The zero value is anonymous.
type Identity struct {
	User   *User
	Client *Client
}

func Anonymous() Identity { return Identity{} }

func (id Identity) Authenticated() bool {
	return id.User != nil || id.Client != nil
}

// Effective reports whether the identity counts as authenticated for
// permission purposes. Suspended and deactivated accounts do not.
func (id Identity) Effective() bool {
	if id.User != nil {
		return !id.User.Suspended && !id.User.Deactivated
	}
	return id.Client != nil
}

// Set is an unordered collection of permission strings.
type Set map[string]struct{}

func NewSet(perms ...string) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p != "" {
			s[p] = struct{}{}
		}
	}
	return s
}

func (s Set) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Granted is the sole access-control primitive: true iff the intersection of
// required and actual is non-empty.
func Granted(required, actual Set) bool {
	if len(required) == 0 {
		return true
	}
	for p := range required {
		if _, ok := actual[p]; ok {
			return true
		}
	}
	return false
}

func intersectScopes(perms Set, scopes []string) Set {
	for _, s := range scopes {
		if strings.TrimSpace(s) == Wildcard {
			return perms
		}
	}
	out := Set{}
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := perms[s]; ok {
			out[s] = struct{}{}
		}
	}
	return out
}
