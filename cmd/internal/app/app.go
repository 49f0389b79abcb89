// Package app wires the bazaar server runtime: config, logging, metrics,
// storage, the session authority, and HTTP routes.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/addressbook"
	authapi "bazaar/cmd/internal/auth/api"
	"bazaar/cmd/internal/auth/session"
	"bazaar/cmd/internal/cart"
)

// App is the bazaar server runtime: it owns the HTTP server wiring and the
// lifecycle of its backing connections.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	redisClient  *redis.Client
	redisEnabled bool

	metrics *Metrics

	auth  *authapi.Handler
	carts *cart.Handler
}

// New constructs a fully wired App instance from config and logger.
//
// Storage selection: Postgres-backed stores when BAZAAR_DATABASE_URL is set,
// otherwise in-memory dev stores; same split for Redis vs the in-process
// revocation registry. Dev-mode fallbacks are logged loudly, never silent.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	codec, err := session.NewJWTCodec(sessCfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	var idStore identity.Store
	var cartStore cart.Store
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		idStore = identity.NewMemoryStore()
		cartStore = cart.NewMemoryStore()
	} else {
		pool, err := NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		a.dbEnabled = true

		pg, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			a.closeConnections()
			return nil, err
		}
		cartPg, err := cart.NewPostgresStore(pool, cart.WithSchema(cfg.DBSchema))
		if err != nil {
			a.closeConnections()
			return nil, err
		}
		idStore = pg
		cartStore = cartPg
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	}

	var registry session.RevocationRegistry
	if cfg.RedisURL == "" {
		log.Info("redis.disabled.inmemory_registry")
		registry = session.NewMemoryRevocationRegistry()
	} else {
		client, err := NewRedisClient(context.Background(), cfg)
		if err != nil {
			a.closeConnections()
			return nil, err
		}
		a.redisClient = client
		a.redisEnabled = true
		registry = session.NewRedisRevocationRegistry(client)
		log.Info("redis.enabled.revocation_registry")
	}

	sessions, err := session.NewService(sessCfg, codec, idStore, registry)
	if err != nil {
		a.closeConnections()
		return nil, err
	}

	a.metrics = NewMetrics()

	authCfg := authapi.LoadConfigFromEnv()
	opts := []authapi.HandlerOption{authapi.WithMetrics(a.metrics)}
	if a.dbEnabled {
		opts = append(opts, authapi.WithAuditor(authapi.NewAuditor(log, a.dbPool, cfg.DBSchema)))
	}

	auth, err := authapi.NewHandler(log, authCfg, sessions, addressbook.NewService(idStore), opts...)
	if err != nil {
		a.closeConnections()
		return nil, err
	}
	a.auth = auth

	carts, err := cart.NewHandler(log, cart.NewService(cartStore), authCfg.MaxBodyBytes)
	if err != nil {
		a.closeConnections()
		return nil, err
	}
	a.carts = carts

	return a, nil
}

// Handler builds the full HTTP handler stack: routes wrapped in logging,
// security headers and CORS.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.redisClient, a.redisEnabled, a.metrics, a.auth, a.carts)

	var h http.Handler = WithRequestLogging(mux, a.log, a.metrics)
	h = WithSecurityHeaders(h)
	h = WithCORS(h, a.cfg, a.log)
	return h
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"redis_enabled", a.redisEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.closeConnections()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.closeConnections()
		return err
	}

	a.closeConnections()
	a.log.Info("server.stopped")
	return nil
}

func (a *App) closeConnections() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redisClient = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
