package main

import (
	"context"
	"net/http"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/gate"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/jsonapi"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/stream"
)

func (s *Server) handleVersion(c *gate.Context) (gate.Result, error) {
	return gate.Doc(http.StatusOK, jsonapi.MetaOnly(s.versionMeta(), c.SelfURL)), nil
}

func (s *Server) versionMeta() jsonapi.Meta {
	return jsonapi.Meta{
		"version":    s.Version,
		"transports": []string{"http", "websocket", "sse"},
	}
}

// profileType projects the authenticated user, with group definitions as a
// relationship so profile?include=groups returns them inline.
func (s *Server) profileType() jsonapi.Type {
	return jsonapi.Type{
		Name: "users",
		ID: func(entity any) string {
			return entity.(*permissions.User).ID
		},
		Attributes: func(entity any) map[string]any {
			u := entity.(*permissions.User)
			return map[string]any{
				"groups":      u.Groups,
				"suspended":   u.Suspended,
				"deactivated": u.Deactivated,
			}
		},
		Relationships: []jsonapi.Relationship{
			{
				Name: "groups",
				Related: func(entity any) []jsonapi.Resource {
					u := entity.(*permissions.User)
					out := make([]jsonapi.Resource, 0, len(u.Groups))
					for _, gid := range u.Groups {
						g, ok := s.Perms.Groups.Group(context.Background(), gid)
						if !ok {
							continue
						}
						out = append(out, jsonapi.Resource{
							Type: "groups",
							ID:   g.ID,
							Attributes: map[string]any{
								"permissions": g.Permissions,
								"rateLimit":   g.RateLimit,
							},
						})
					}
					return out
				},
			},
		},
	}
}

func (s *Server) handleProfile(c *gate.Context) (gate.Result, error) {
	if err := c.RequireAuth(); err != nil {
		return gate.Result{}, err
	}
	if c.Identity.User == nil {
		return gate.Result{}, apierrors.Forbidden("client credentials have no profile")
	}
	doc := jsonapi.Individual(s.profileType(), c.Identity.User, c.Descriptor, c.SelfURL)
	return gate.Doc(http.StatusOK, doc), nil
}

func (s *Server) handleLogout(c *gate.Context) (gate.Result, error) {
	if err := c.RequireAuth(); err != nil {
		return gate.Result{}, err
	}
	if c.Request != nil {
		if cookie, err := c.Request.Cookie(s.Auth.CookieName); err == nil && cookie.Value != "" {
			if err := s.Auth.RevokeSession(c.Context(), cookie.Value); err != nil {
				return gate.Result{}, apierrors.Internal(err)
			}
		}
	}
	return gate.NoContent(), nil
}

type subscribeRequest struct {
	Events []string `json:"events"`
}

func (s *Server) handleSubscribe(c *gate.Context) (gate.Result, error) {
	clientID, ok := wsClientID(c)
	if !ok {
		return gate.Result{}, apierrors.BadRequest("subscriptions require a websocket connection")
	}
	var req subscribeRequest
	if err := c.DecodeBody(&req); err != nil {
		return gate.Result{}, err
	}
	if len(req.Events) == 0 {
		return gate.Result{}, apierrors.BadRequest("events list required").WithPointer("/events")
	}
	s.Hub.Subscribe(clientID, req.Events...)
	return s.subscriptionDoc(clientID, c.SelfURL), nil
}

func (s *Server) handleUnsubscribe(c *gate.Context) (gate.Result, error) {
	clientID, ok := wsClientID(c)
	if !ok {
		return gate.Result{}, apierrors.BadRequest("subscriptions require a websocket connection")
	}
	var req subscribeRequest
	if err := c.DecodeBody(&req); err != nil {
		return gate.Result{}, err
	}
	s.Hub.Unsubscribe(clientID, req.Events...)
	return s.subscriptionDoc(clientID, c.SelfURL), nil
}

func (s *Server) subscriptionDoc(clientID, selfURL string) gate.Result {
	subs := s.Hub.Subscriptions(clientID)
	if subs == nil {
		subs = []string{}
	}
	return gate.Doc(http.StatusOK, jsonapi.MetaOnly(jsonapi.Meta{"subscriptions": subs}, selfURL))
}

type broadcastRequest struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (s *Server) handleBroadcast(c *gate.Context) (gate.Result, error) {
	if err := c.Require("events.write"); err != nil {
		return gate.Result{}, err
	}
	var req broadcastRequest
	if err := c.DecodeBody(&req); err != nil {
		return gate.Result{}, err
	}
	if req.Event == "" {
		return gate.Result{}, apierrors.BadRequest("event name required").WithPointer("/event")
	}
	sender := ""
	if c.Identity.User != nil {
		sender = c.Identity.User.ID
	}
	s.Hub.Publish(stream.NewEvent(req.Event, sender, "", req.Data))
	s.Metrics.IncBroadcast()
	return gate.NoContent(), nil
}

const wsClientKey = "ws.client"

func wsClientID(c *gate.Context) (string, bool) {
	id, ok := c.Values[wsClientKey].(string)
	return id, ok && id != ""
}
