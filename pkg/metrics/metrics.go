// Package metrics is a small operational counter registry exposed as JSON.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/httpx"
)

type Registry struct {
	mu                sync.RWMutex
	endpoint          map[string]*EndpointStat
	rateLimitRejected int64
	broadcastsSent    int64
	wsClients         int64
	sseStreams        int64
	authFailures      int64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt       string                  `json:"generated_at"`
	Endpoints         map[string]EndpointStat `json:"endpoints"`
	RateLimitRejected int64                   `json:"rate_limit_rejected_total"`
	BroadcastsSent    int64                   `json:"broadcasts_sent_total"`
	WSClients         int64                   `json:"websocket_clients"`
	SSEStreams        int64                   `json:"sse_streams"`
	AuthFailures      int64                   `json:"auth_failures_total"`
}

func NewRegistry() *Registry {
	return &Registry{endpoint: map[string]*EndpointStat{}}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
	if status == http.StatusTooManyRequests {
		r.rateLimitRejected++
	}
	if status == http.StatusUnauthorized {
		r.authFailures++
	}
}

func (r *Registry) IncBroadcast() {
	r.mu.Lock()
	r.broadcastsSent++
	r.mu.Unlock()
}

func (r *Registry) AddWSClients(delta int64) {
	r.mu.Lock()
	r.wsClients += delta
	r.mu.Unlock()
}

func (r *Registry) AddSSEStreams(delta int64) {
	r.mu.Lock()
	r.sseStreams += delta
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoints := make(map[string]EndpointStat, len(r.endpoint))
	for k, v := range r.endpoint {
		endpoints[k] = *v
	}
	return Snapshot{
		GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
		Endpoints:         endpoints,
		RateLimitRejected: r.rateLimitRejected,
		BroadcastsSent:    r.broadcastsSent,
		WSClients:         r.wsClients,
		SSEStreams:        r.sseStreams,
		AuthFailures:      r.authFailures,
	}
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, r.Snapshot())
	}
}
