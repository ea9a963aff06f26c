// Package authn resolves request credentials into identities. Three methods
// are tried in order: client-secret basic credentials, session cookie,
// bearer token (header or query parameter). The first successful method
// wins; requests without credentials resolve to the anonymous identity.
package authn

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/gate"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/store"
)

// ErrNotFound is returned by stores when no record matches.
var ErrNotFound = errors.New("authn: not found")

// UserStore looks up accounts and OAuth clients. Suspension and deactivation
// flags are re-read on every request so a ban takes effect mid-connection.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*permissions.User, error)
	// FindClient also returns the hex sha256 of the client secret.
	FindClient(ctx context.Context, id string) (*permissions.Client, string, error)
}

const (
	DefaultCookieName  = "fuelrats-session"
	sessionKeyPrefix   = "session:"
	bearerQueryParam   = "bearer"
	authorizationValue = "bearer "
)

type Authenticator struct {
	Users      UserStore
	Sessions   store.Cache
	JWTSecret  []byte
	CookieName string
}

// Authenticate implements gate.Authenticator.
func (a *Authenticator) Authenticate(c *gate.Context) (permissions.Identity, error) {
	if id, ok, err := a.clientCredentials(c); ok {
		return id, err
	}
	if id, ok, err := a.sessionCookie(c); ok {
		return id, err
	}
	if id, ok, err := a.bearerToken(c); ok {
		return id, err
	}
	return permissions.Anonymous(), nil
}

func (a *Authenticator) clientCredentials(c *gate.Context) (permissions.Identity, bool, error) {
	if c.Request == nil {
		return permissions.Identity{}, false, nil
	}
	clientID, secret, ok := c.Request.BasicAuth()
	if !ok {
		return permissions.Identity{}, false, nil
	}
	client, secretHash, err := a.Users.FindClient(c.Context(), clientID)
	if errors.Is(err, ErrNotFound) {
		return permissions.Identity{}, true, apierrors.Unauthenticated("unknown client")
	}
	if err != nil {
		return permissions.Identity{}, true, fmt.Errorf("client lookup: %w", err)
	}
	sum := sha256.Sum256([]byte(secret))
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(secretHash)) != 1 {
		return permissions.Identity{}, true, apierrors.Unauthenticated("invalid client secret")
	}
	identity := permissions.Identity{Client: client}
	if client.UserID != "" {
		user, err := a.Users.FindUser(c.Context(), client.UserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return permissions.Identity{}, true, fmt.Errorf("client user lookup: %w", err)
		}
		identity.User = user
	}
	return identity, true, nil
}

func (a *Authenticator) sessionCookie(c *gate.Context) (permissions.Identity, bool, error) {
	if c.Request == nil || a.Sessions == nil {
		return permissions.Identity{}, false, nil
	}
	name := a.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	cookie, err := c.Request.Cookie(name)
	if err != nil || cookie.Value == "" {
		return permissions.Identity{}, false, nil
	}
	userID, err := a.Sessions.Get(c.Context(), sessionKeyPrefix+cookie.Value)
	if err != nil || userID == "" {
		return permissions.Identity{}, true, apierrors.Unauthenticated("invalid or expired session")
	}
	user, err := a.Users.FindUser(c.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		return permissions.Identity{}, true, apierrors.Unauthenticated("invalid session user")
	}
	if err != nil {
		return permissions.Identity{}, true, fmt.Errorf("session user lookup: %w", err)
	}
	return permissions.Identity{User: user}, true, nil
}

func (a *Authenticator) bearerToken(c *gate.Context) (permissions.Identity, bool, error) {
	token := ""
	if c.Request != nil {
		header := strings.TrimSpace(c.Request.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(header), authorizationValue) {
			token = strings.TrimSpace(header[len(authorizationValue):])
		}
	}
	if token == "" && c.Query != nil {
		token = strings.TrimSpace(c.Query.Get(bearerQueryParam))
	}
	if token == "" {
		return permissions.Identity{}, false, nil
	}
	identity, err := a.VerifyToken(c.Context(), token)
	return identity, true, err
}

type tokenClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"cid,omitempty"`
	Scope    string `json:"scope,omitempty"`
}

// VerifyToken validates a bearer token and resolves its subject. Tokens
// issued to an OAuth client carry the client id and granted scope, which
// restricts the user's permissions downstream.
func (a *Authenticator) VerifyToken(ctx context.Context, token string) (permissions.Identity, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.JWTSecret, nil
	})
	if err != nil || !parsed.Valid {
		return permissions.Identity{}, apierrors.Unauthenticated("invalid bearer token")
	}
	if claims.Subject == "" {
		return permissions.Identity{}, apierrors.Unauthenticated("token has no subject")
	}
	user, err := a.Users.FindUser(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return permissions.Identity{}, apierrors.Unauthenticated("unknown token subject")
	}
	if err != nil {
		return permissions.Identity{}, fmt.Errorf("token user lookup: %w", err)
	}
	identity := permissions.Identity{User: user}
	if claims.ClientID != "" {
		identity.Client = &permissions.Client{
			ID:     claims.ClientID,
			UserID: claims.Subject,
			Scopes: strings.Fields(claims.Scope),
		}
	}
	return identity, nil
}

// RevokeSession invalidates one session token (logout).
func (a *Authenticator) RevokeSession(ctx context.Context, token string) error {
	if a.Sessions == nil {
		return nil
	}
	return a.Sessions.Del(ctx, sessionKeyPrefix+token)
}

// IssueSession records a session token for a user. TTL handling is the
// cache's concern.
func (a *Authenticator) IssueSession(ctx context.Context, token, userID string, ttlSeconds int) error {
	if a.Sessions == nil {
		return errors.New("authn: no session store configured")
	}
	return a.Sessions.Set(ctx, sessionKeyPrefix+token, userID, secondsToDuration(ttlSeconds))
}
