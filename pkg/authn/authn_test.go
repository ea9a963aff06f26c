package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/gate"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/store"
)

var testSecret = []byte("test-token-secret")

func testAuthenticator() *Authenticator {
	users := &MemoryUserStore{
		Users: map[string]*permissions.User{
			"u1": {ID: "u1", Groups: []string{"rat"}},
			"u2": {ID: "u2", Suspended: true},
		},
		Clients: map[string]MemoryClient{
			"c1": {
				Client:     permissions.Client{ID: "c1", UserID: "u1", Scopes: []string{"rescues.read"}},
				SecretHash: sha256Hex("hunter2"),
			},
		},
	}
	return &Authenticator{
		Users:     users,
		Sessions:  store.NewMemoryCache(),
		JWTSecret: testSecret,
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func contextFor(r *http.Request) *gate.Context {
	return gate.FromHTTP(r, r.URL.Path, 1<<20)
}

func signToken(t *testing.T, claims tokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestAuthenticateNoCredentialsIsAnonymous(t *testing.T) {
	a := testAuthenticator()
	id, err := a.Authenticate(contextFor(httptest.NewRequest(http.MethodGet, "/version", nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Authenticated() {
		t.Fatalf("credential-less request authenticated: %+v", id)
	}
}

func TestAuthenticateClientCredentials(t *testing.T) {
	a := testAuthenticator()
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.SetBasicAuth("c1", "hunter2")
	id, err := a.Authenticate(contextFor(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Client == nil || id.Client.ID != "c1" {
		t.Fatalf("client not attached: %+v", id)
	}
	if id.User == nil || id.User.ID != "u1" {
		t.Fatalf("owning user not attached: %+v", id)
	}
}

func TestAuthenticateWrongClientSecret(t *testing.T) {
	a := testAuthenticator()
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.SetBasicAuth("c1", "wrong")
	if _, err := a.Authenticate(contextFor(r)); err == nil {
		t.Fatalf("wrong secret admitted")
	}

	r = httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.SetBasicAuth("ghost", "hunter2")
	if _, err := a.Authenticate(contextFor(r)); err == nil {
		t.Fatalf("unknown client admitted")
	}
}

func TestAuthenticateSessionCookie(t *testing.T) {
	a := testAuthenticator()
	if err := a.IssueSession(context.Background(), "tok123", "u1", 3600); err != nil {
		t.Fatalf("issue session: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "tok123"})
	id, err := a.Authenticate(contextFor(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.User == nil || id.User.ID != "u1" {
		t.Fatalf("session did not resolve user: %+v", id)
	}
}

func TestAuthenticateRevokedSession(t *testing.T) {
	a := testAuthenticator()
	if err := a.IssueSession(context.Background(), "tok123", "u1", 3600); err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if err := a.RevokeSession(context.Background(), "tok123"); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "tok123"})
	if _, err := a.Authenticate(contextFor(r)); err == nil {
		t.Fatalf("revoked session admitted")
	}
}

func TestAuthenticateBearerHeader(t *testing.T) {
	a := testAuthenticator()
	token := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, err := a.Authenticate(contextFor(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.User == nil || id.User.ID != "u1" || id.Client != nil {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestAuthenticateBearerQueryParam(t *testing.T) {
	a := testAuthenticator()
	token := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	r := httptest.NewRequest(http.MethodGet, "/events?bearer="+token, nil)
	id, err := a.Authenticate(contextFor(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.User == nil || id.User.ID != "u1" {
		t.Fatalf("query bearer not accepted: %+v", id)
	}
}

func TestAuthenticateClientScopedToken(t *testing.T) {
	a := testAuthenticator()
	token := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ClientID: "c1",
		Scope:    "rescues.read rats.read",
	})
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, err := a.Authenticate(contextFor(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Client == nil || id.Client.ID != "c1" {
		t.Fatalf("token client not attached: %+v", id)
	}
	if len(id.Client.Scopes) != 2 {
		t.Fatalf("scope not split: %+v", id.Client.Scopes)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	a := testAuthenticator()

	expired := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	unknownSubject := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ghost",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	for name, token := range map[string]string{
		"expired":         expired,
		"forged":          forged,
		"unknown subject": unknownSubject,
		"garbage":         "not.a.token",
	} {
		r := httptest.NewRequest(http.MethodGet, "/profile", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		if _, err := a.Authenticate(contextFor(r)); err == nil {
			t.Fatalf("%s token admitted", name)
		}
	}
}

func TestAuthenticateMethodOrder(t *testing.T) {
	// Basic credentials win over a bearer token when both are present.
	a := testAuthenticator()
	token := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	r := httptest.NewRequest(http.MethodGet, "/profile?bearer="+token, nil)
	r.SetBasicAuth("c1", "hunter2")
	id, err := a.Authenticate(contextFor(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Client == nil || id.Client.ID != "c1" {
		t.Fatalf("basic credentials did not take precedence: %+v", id)
	}
}

func TestAuthenticateSuspendedUserStillResolves(t *testing.T) {
	// Suspension is a permission concern: the identity resolves, the
	// permission engine strips it later.
	a := testAuthenticator()
	token := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, err := a.Authenticate(contextFor(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.User == nil || !id.User.Suspended {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if id.Effective() {
		t.Fatalf("suspended identity reported effective")
	}
}
