package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
	"github.com/sirupsen/logrus"

	"wishlist_backend/internal/config"
	"wishlist_backend/internal/handler"
	"wishlist_backend/internal/idempotency"
	"wishlist_backend/internal/logger"
	"wishlist_backend/internal/metrics"
	"wishlist_backend/internal/realtime"
	"wishlist_backend/internal/service"
	"wishlist_backend/internal/store"
)

// newContainer registers every long-lived component. Nothing is built until
// it is first invoked.
func newContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.Provide(injector, provideLogger)
	do.Provide(injector, provideMetrics)

	do.Provide(injector, provideStore)
	do.Provide(injector, provideRedis)
	do.Provide(injector, provideIdempotencyCache)

	do.Provide(injector, provideHub)
	do.Provide(injector, provideBroadcaster)

	do.Provide(injector, provideReservationService)
	do.Provide(injector, provideContributionService)
	do.Provide(injector, provideWishlistService)

	do.Provide(injector, provideHTTPServer)

	return injector
}

func provideLogger(i do.Injector) (*logrus.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := logger.New(cfg.LogLevel, cfg.Env)
	log.WithFields(logrus.Fields{
		"env":       cfg.Env,
		"db_driver": cfg.DBDriver,
	}).Info("starting wishlist backend")
	return log, nil
}

func provideMetrics(i do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

// StoreHandle closes the store when the container shuts down.
type StoreHandle struct {
	store.Store
	Seeder store.Seeder
}

func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

func provideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logrus.Logger](i)

	if cfg.DBDriver == "memory" {
		log.Warn("using the in-memory store, data is lost on exit")
		st := store.NewMemoryStore()
		return &StoreHandle{Store: st, Seeder: st}, nil
	}

	db, err := store.ConnectDB(cfg.DBDriver, cfg.DBDataSourceName, cfg.DBMaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database connected and migrated")

	st := store.NewPostgresStore(db)
	return &StoreHandle{Store: st, Seeder: st}, nil
}

// RedisHandle holds a nil Client when Redis is disabled or unreachable.
type RedisHandle struct {
	Client *redis.Client
}

func (h *RedisHandle) Shutdown() error {
	if h.Client == nil {
		return nil
	}
	return h.Client.Close()
}

func provideRedis(i do.Injector) (*RedisHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logrus.Logger](i)

	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL is empty, realtime events reach this process only")
		return &RedisHandle{}, nil
	}

	client, err := store.NewRedisClient(cfg.RedisURL)
	if err != nil {
		if cfg.IdempotencyBackend == "redis" {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.WithError(err).Warn("redis unavailable, realtime events reach this process only")
		return &RedisHandle{}, nil
	}
	log.Info("redis connected")
	return &RedisHandle{Client: client}, nil
}

func provideIdempotencyCache(i do.Injector) (idempotency.Cache, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logrus.Logger](i)

	if cfg.IdempotencyBackend == "redis" {
		rh, err := do.Invoke[*RedisHandle](i)
		if err != nil {
			return nil, err
		}
		return idempotency.NewRedisCache(rh.Client, cfg.IdempotencyTTL, log), nil
	}
	return idempotency.NewMemoryCache(cfg.IdempotencyTTL, cfg.IdempotencyMaxEntries), nil
}

func provideHub(i do.Injector) (*realtime.Hub, error) {
	log := do.MustInvoke[*logrus.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	return realtime.NewHub(log, m), nil
}

func provideBroadcaster(i do.Injector) (*realtime.Broadcaster, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logrus.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	hub := do.MustInvoke[*realtime.Hub](i)
	rh := do.MustInvoke[*RedisHandle](i)

	var relay realtime.Relay
	if rh.Client != nil {
		relay = realtime.NewRedisRelay(rh.Client, cfg.WSChannel)
	}
	return realtime.NewBroadcaster(hub, relay, cfg.RelayTimeout, log, m), nil
}

func provideReservationService(i do.Injector) (*service.ReservationService, error) {
	return service.NewReservationService(
		do.MustInvoke[*StoreHandle](i),
		do.MustInvoke[*realtime.Broadcaster](i),
		do.MustInvoke[*logrus.Logger](i),
		do.MustInvoke[*metrics.Metrics](i),
	), nil
}

func provideContributionService(i do.Injector) (*service.ContributionService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return service.NewContributionService(
		do.MustInvoke[*StoreHandle](i),
		do.MustInvoke[*realtime.Broadcaster](i),
		cfg.MinContributionAmount,
		do.MustInvoke[*logrus.Logger](i),
		do.MustInvoke[*metrics.Metrics](i),
	), nil
}

func provideWishlistService(i do.Injector) (*service.WishlistService, error) {
	return service.NewWishlistService(do.MustInvoke[*StoreHandle](i)), nil
}

func provideHTTPServer(i do.Injector) (*http.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logrus.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	st := do.MustInvoke[*StoreHandle](i)
	hub := do.MustInvoke[*realtime.Hub](i)

	sessions := handler.NewSessionResolver(cfg)
	router := handler.NewRouter(handler.RouterConfig{
		Logger:      log,
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
		Reservations: handler.NewReservationHandler(log,
			do.MustInvoke[*service.ReservationService](i), sessions),
		Contribution: handler.NewContributionHandler(log,
			do.MustInvoke[*service.ContributionService](i),
			do.MustInvoke[idempotency.Cache](i), sessions, m),
		Wishlists: handler.NewWishlistHandler(log,
			do.MustInvoke[*service.WishlistService](i),
			realtime.NewWebSocketHandler(hub, cfg.WSWriteTimeout, cfg.CORSOrigins, log)),
		Health: handler.NewHealthHandler(log, st),
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}, nil
}
