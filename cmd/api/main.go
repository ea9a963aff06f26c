package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/audit"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/authn"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/gate"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/hardening"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/httpx"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/metrics"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/permissions"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/ratelimit"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/route"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/statebus"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/store"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/stream"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/telemetry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type apiDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type apiDBCloser interface {
	apiDB
	Close()
}

type Server struct {
	DB      apiDB
	Cache   store.Cache
	Gateway *gate.Gateway
	Auth    *authn.Authenticator
	Perms   *permissions.Engine
	Routes  *route.Registry
	Hub     *stream.Hub
	Domain  *stream.DomainBus
	Metrics *metrics.Registry
	Audit   *audit.Writer

	Version           string
	MaxBodyBytes      int64
	MaxWSMessageBytes int
	WSWriteTimeout    time.Duration
}

type apiInitTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type apiOpenDBFunc func(ctx context.Context) (apiDBCloser, error)
type apiOpenRedisFunc func(ctx context.Context) (*redis.Client, error)
type apiListenFunc func(server *http.Server) error

// Testable variables for main()
var (
	logFatalf      = log.Fatalf
	initTelemetryG = telemetry.Init
	openDBFnG      = func(ctx context.Context) (apiDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFnG   = store.NewRedis
	listenFnG      = func(server *http.Server) error { return server.ListenAndServe() }
)

func main() {
	if err := runAPI(initTelemetryG, openDBFnG, openRedisFnG, listenFnG); err != nil {
		logFatalf("api: %v", err)
	}
}

func runAPI(
	initTelemetry apiInitTelemetryFunc,
	openDB apiOpenDBFunc,
	openRedis apiOpenRedisFunc,
	listen apiListenFunc,
) error {
	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "api")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache/limits: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := store.NewCache(ctx, redisClient)

	if err := hardening.ValidateProduction(hardening.Options{
		Service:            "api",
		Environment:        env("ENVIRONMENT", env("APP_ENV", "")),
		StrictProdSecurity: env("STRICT_PROD_SECURITY", "true"),
		DatabaseRequireTLS: env("DATABASE_REQUIRE_TLS", ""),
		RedisAddr:          env("REDIS_ADDR", ""),
		RedisRequireTLS:    env("REDIS_REQUIRE_TLS", ""),
		CORSAllowedOrigins: env("CORS_ALLOWED_ORIGINS", ""),
		RequiredSecrets: []hardening.EnvRequirement{
			{Name: "TOKEN_SECRET", Value: env("TOKEN_SECRET", "")},
		},
	}); err != nil {
		return err
	}

	groupCache := permissions.NewCache(
		permissions.PGGroupSource{DB: pool},
		time.Second*time.Duration(envInt("GROUP_CACHE_TTL_SEC", 60)),
	)
	if err := groupCache.Refresh(ctx); err != nil {
		log.Printf("group cache warmup failed, first lookup will retry: %v", err)
	}
	engine := &permissions.Engine{
		Groups:               groupCache,
		AnonymousPermissions: splitCSV(env("ANONYMOUS_PERMISSIONS", "rescues.read,rats.read")),
		DefaultRateLimit:     envInt("RATE_LIMIT_DEFAULT", 3600),
		AnonymousRateLimit:   envInt("RATE_LIMIT_ANONYMOUS", 360),
	}

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient)
	} else {
		limiter = ratelimit.NewInMemory()
	}

	authenticator := &authn.Authenticator{
		Users:      authn.PGUserStore{DB: pool},
		Sessions:   cache,
		JWTSecret:  []byte(env("TOKEN_SECRET", "")),
		CookieName: env("SESSION_COOKIE", authn.DefaultCookieName),
	}

	routes := route.NewRegistry()
	s := &Server{
		DB:     pool,
		Cache:  cache,
		Auth:   authenticator,
		Perms:  engine,
		Routes: routes,
		Gateway: &gate.Gateway{
			Auth:            authenticator,
			Perms:           engine,
			Limiter:         limiter,
			Routes:          routes,
			MaxPageSize:     envInt("MAX_PAGE_SIZE", 100),
			MaxPageSizeAuth: envInt("MAX_PAGE_SIZE_AUTH", 500),
		},
		Hub:               stream.NewHub(),
		Domain:            stream.NewDomainBus(engine),
		Metrics:           metrics.NewRegistry(),
		Audit:             &audit.Writer{DB: pool, Redact: env("AUDIT_REDACT", "false") == "true"},
		Version:           env("API_VERSION", "dev"),
		MaxBodyBytes:      int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		MaxWSMessageBytes: envInt("MAX_WS_MESSAGE_BYTES", 1<<20),
		WSWriteTimeout:    time.Second * time.Duration(envInt("WS_WRITE_TIMEOUT_SEC", 10)),
	}

	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(telemetry.HTTPMiddleware("api"))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "api"})
	})
	r.Get("/metrics", s.Metrics.Handler())

	registerRoutes(s, r)
	routes.Seal()

	r.Get("/ws", s.handleWebSocket)
	r.Get("/events", s.handleEvents)

	if brokers := splitCSV(env("KAFKA_BROKERS", "")); len(brokers) > 0 {
		consumer, err := statebus.NewKafkaConsumer(statebus.KafkaConfig{
			Brokers: brokers,
			Topic:   env("KAFKA_EVENTS_TOPIC", "api.domain-events"),
			GroupID: env("KAFKA_GROUP_ID", "api-gateway"),
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer consumer.Close()
		bridge := &statebus.Bridge{Consumer: consumer, Bus: s.Domain}
		go func() {
			if err := bridge.Run(ctx); err != nil {
				log.Printf("statebus bridge stopped: %v", err)
			}
		}()
	}

	addr := env("ADDR", ":8080")
	log.Printf("api listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

// registerRoutes is the single explicit registration list: every route on
// every transport is bound here during startup, nowhere else.
func registerRoutes(s *Server, r chi.Router) {
	s.mountHTTP(r, http.MethodGet, "/api/version", s.handleVersion)
	s.mountHTTP(r, http.MethodGet, "/api/profile", s.handleProfile)
	s.mountHTTP(r, http.MethodPost, "/api/logout", s.handleLogout)

	s.Routes.RegisterWS([]string{"version", "read"}, s.handleVersion)
	s.Routes.RegisterWS([]string{"profile", "read"}, s.handleProfile)
	s.Routes.RegisterWS([]string{"stream", "subscribe"}, s.handleSubscribe)
	s.Routes.RegisterWS([]string{"stream", "unsubscribe"}, s.handleUnsubscribe)
	s.Routes.RegisterWS([]string{"stream", "broadcast"}, s.handleBroadcast)
}

// mountHTTP registers the route key and mounts the pipeline entry point on
// the router in one step so the two can never drift apart.
func (s *Server) mountHTTP(r chi.Router, method, pattern string, h gate.Handler) {
	s.Routes.RegisterHTTP(method, pattern, h)
	r.MethodFunc(method, pattern, func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		c := gate.FromHTTP(req, pattern, s.MaxBodyBytes)
		resp := s.Gateway.Run(c)
		s.recordOutcome(c, resp, pattern, start)
		httpx.WriteResponse(w, resp)
	})
}

func (s *Server) recordOutcome(c *gate.Context, resp gate.Response, routeName string, start time.Time) {
	s.Metrics.Observe(routeName, resp.Status, time.Since(start))
	if resp.Err == nil || resp.Status < http.StatusInternalServerError || s.Audit == nil {
		return
	}
	actor := ""
	if c.Identity.User != nil {
		actor = c.Identity.User.ID
	}
	if err := s.Audit.Append(context.Background(), audit.Record{
		CorrelationID: resp.Err.ID,
		Transport:     c.Transport,
		Route:         routeName,
		ActorID:       actor,
		Status:        resp.Status,
		ErrorCode:     resp.Err.Code,
		Detail:        resp.Err.Detail,
	}); err != nil {
		log.Printf("audit append failed: %v", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationSec(key string, def int) time.Duration {
	return time.Second * time.Duration(envInt(key, def))
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
