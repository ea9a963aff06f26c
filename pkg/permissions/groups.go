package permissions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Group is a named grant bundle. RateLimit is the hourly request quota the
// group confers; an identity's quota is the maximum across its groups.
type Group struct {
	ID          string
	Permissions []string
	RateLimit   int
}

// GroupSource loads group definitions from backing storage.
type GroupSource interface {
	LoadGroups(ctx context.Context) ([]Group, error)
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGGroupSource reads groups from Postgres.
type PGGroupSource struct {
	DB pgQuerier
}

func (s PGGroupSource) LoadGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, permissions, rate_limit FROM groups`)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Permissions, &g.RateLimit); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// StaticGroupSource serves a fixed group list. Used in tests and when no
// database is configured.
type StaticGroupSource []Group

func (s StaticGroupSource) LoadGroups(ctx context.Context) ([]Group, error) {
	return s, nil
}

// Cache holds group definitions with a bounded staleness window. Lookups past
// the TTL trigger a reload; Refresh forces one. A failed reload keeps serving
// the previous snapshot so a storage blip does not strip permissions.
type Cache struct {
	source GroupSource
	ttl    time.Duration

	mu       sync.RWMutex
	groups   map[string]Group
	loadedAt time.Time
}

func NewCache(source GroupSource, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{source: source, ttl: ttl, groups: map[string]Group{}}
}

func (c *Cache) Refresh(ctx context.Context) error {
	groups, err := c.source.LoadGroups(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]Group, len(groups))
	for _, g := range groups {
		next[g.ID] = g
	}
	c.mu.Lock()
	c.groups = next
	c.loadedAt = time.Now().UTC()
	c.mu.Unlock()
	return nil
}

func (c *Cache) Group(ctx context.Context, id string) (Group, bool) {
	c.mu.RLock()
	stale := time.Now().UTC().After(c.loadedAt.Add(c.ttl))
	g, ok := c.groups[id]
	c.mu.RUnlock()
	if stale {
		if err := c.Refresh(ctx); err == nil {
			c.mu.RLock()
			g, ok = c.groups[id]
			c.mu.RUnlock()
		}
	}
	return g, ok
}
