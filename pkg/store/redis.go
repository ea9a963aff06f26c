package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis opens the client shared by the session cache and the hourly
// quota buckets. Configuration comes from REDIS_URL when set and from
// discrete REDIS_* variables otherwise; callers fall back to the in-memory
// cache and limiter when the ping fails.
func NewRedis(ctx context.Context) (*redis.Client, error) {
	opts, err := redisOptionsFromEnv()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func redisOptionsFromEnv() (*redis.Options, error) {
	var opts *redis.Options
	if raw := strings.TrimSpace(os.Getenv("REDIS_URL")); raw != "" {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
		if addr == "" {
			addr = "localhost:6379"
		}
		opts = &redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		}
	}
	// Session lookups sit on the hot path of every authenticated request.
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.MinIdleConns = 2
	if opts.TLSConfig == nil {
		cfg, err := redisTLSFromEnv()
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = cfg
	}
	if requiresSecureTransport("REDIS_REQUIRE_TLS") && opts.TLSConfig == nil {
		return nil, fmt.Errorf("REDIS_REQUIRE_TLS=true but neither rediss:// nor REDIS_TLS is configured")
	}
	return opts, nil
}

func redisTLSFromEnv() (*tls.Config, error) {
	if !requiresSecureTransport("REDIS_TLS") {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME")); serverName != "" {
		cfg.ServerName = serverName
	}
	if caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE")); caFile != "" {
		caBytes, err := os.ReadFile(filepath.Clean(caFile))
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("parse REDIS_TLS_CA_FILE: no valid certificates")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
