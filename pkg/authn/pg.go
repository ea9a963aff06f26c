package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
)

func secondsToDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return time.Hour
	}
	return time.Duration(seconds) * time.Second
}

type pgRowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGUserStore reads accounts and OAuth clients from Postgres.
type PGUserStore struct {
	DB pgRowQuerier
}

func (s PGUserStore) FindUser(ctx context.Context, id string) (*permissions.User, error) {
	var u permissions.User
	err := s.DB.QueryRow(ctx,
		`SELECT id, groups, suspended, deactivated FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Groups, &u.Suspended, &u.Deactivated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s PGUserStore) FindClient(ctx context.Context, id string) (*permissions.Client, string, error) {
	var c permissions.Client
	var secretHash string
	err := s.DB.QueryRow(ctx,
		`SELECT id, user_id, scopes, secret_hash FROM clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.Scopes, &secretHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("find client: %w", err)
	}
	return &c, secretHash, nil
}

// MemoryUserStore is a fixture store for tests and databaseless deployments.
type MemoryUserStore struct {
	Users   map[string]*permissions.User
	Clients map[string]MemoryClient
}

type MemoryClient struct {
	Client     permissions.Client
	SecretHash string
}

func (s *MemoryUserStore) FindUser(ctx context.Context, id string) (*permissions.User, error) {
	u, ok := s.Users[id]
	if !ok {
		return nil, ErrNotFound
	}
	dup := *u
	return &dup, nil
}

func (s *MemoryUserStore) FindClient(ctx context.Context, id string) (*permissions.Client, string, error) {
	c, ok := s.Clients[id]
	if !ok {
		return nil, "", ErrNotFound
	}
	dup := c.Client
	return &dup, c.SecretHash, nil
}
