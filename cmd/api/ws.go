package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/gate"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/httpx"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/jsonapi"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/stream"
)

// wsClient serializes all writes to one connection: pipeline replies and
// fan-out broadcasts interleave, and the underlying connection allows only
// one concurrent writer.
type wsClient struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) Send(evt stream.Event) error {
	data, err := evt.MarshalWire()
	if err != nil {
		return err
	}
	return c.writeRaw(data)
}

func (c *wsClient) writeRaw(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Connection setup authenticates once and peeks the quota without
	// charging it; each message is charged individually.
	probe := gate.FromHTTP(r, "/ws", s.MaxBodyBytes)
	identity, err := s.Auth.Authenticate(probe)
	if err != nil {
		s.writeHandshakeError(w, "/ws", apierrors.From(err))
		return
	}
	decision := s.Gateway.Limiter.Check(
		gate.RateKey(identity, gate.RemoteIP(r)),
		s.Perms.RateLimitFor(r.Context(), identity),
		false,
	)
	if decision.Exceeded {
		httpx.RateLimitHeaders(w, decision)
		s.writeHandshakeError(w, "/ws", apierrors.TooManyRequests("rate limit exceeded"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return
	}
	conn.SetReadLimit(int64(s.MaxWSMessageBytes) * 2)

	client := &wsClient{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: s.WSWriteTimeout,
	}
	s.Hub.Add(client)
	if identity.Authenticated() {
		s.Domain.Add(client, identity)
	}
	s.Metrics.AddWSClients(1)
	defer func() {
		s.Hub.Remove(client.id)
		s.Domain.Remove(client.id)
		s.Metrics.AddWSClients(-1)
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
	}()

	welcome := stream.NewEvent("connection", "", "", s.versionMeta())
	if err := client.Send(welcome); err != nil {
		return
	}

	// Messages are processed sequentially so replies go out in request
	// order on this connection.
	for {
		_, raw, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		start := time.Now()
		c := gate.FromWSMessage(context.WithoutCancel(r.Context()), raw, gate.RemoteIP(r), s.MaxWSMessageBytes)
		c.Request = r
		c.Values[wsClientKey] = client.id
		resp := s.Gateway.Run(c)
		s.recordOutcome(c, resp, wsRouteName(c), start)
		if err := client.writeRaw(wsReply(c, resp)); err != nil {
			return
		}
	}
}

// wsReply frames a pipeline response as [state, status, body], echoing the
// client's correlation token verbatim.
func wsReply(c *gate.Context, resp gate.Response) []byte {
	state := c.State
	if state == nil {
		state = json.RawMessage("null")
	}
	body := json.RawMessage("null")
	if !resp.NoBody && len(resp.Body) > 0 {
		body = resp.Body
	}
	out, _ := json.Marshal([]any{state, resp.Status, body})
	return out
}

func wsRouteName(c *gate.Context) string {
	if len(c.RouteTuple) == 0 {
		return "ws:invalid"
	}
	return "ws:" + strings.Join(c.RouteTuple, ":")
}

// writeHandshakeError renders a taxonomy error on a stream endpoint before
// the protocol upgrade happens, while plain HTTP responses are still
// possible.
func (s *Server) writeHandshakeError(w http.ResponseWriter, selfURL string, apiErr *apierrors.APIError) {
	doc := jsonapi.Errors(selfURL, apiErr)
	body, _ := json.Marshal(doc)
	w.Header().Set("Content-Type", httpx.ContentType)
	w.WriteHeader(apiErr.Status)
	_, _ = w.Write(body)
}
