package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishlist_backend/internal/config"
	"wishlist_backend/internal/idempotency"
	"wishlist_backend/internal/realtime"
	"wishlist_backend/internal/store"
)

func memoryConfig() *config.Config {
	return &config.Config{
		ServerPort:            0,
		Env:                   "development",
		LogLevel:              "error",
		DBDriver:              "memory",
		WSChannel:             "wishlist:ws_events",
		RelayTimeout:          time.Second,
		WSWriteTimeout:        time.Second,
		IdempotencyBackend:    "memory",
		IdempotencyTTL:        time.Hour,
		IdempotencyMaxEntries: 10,
		SessionCookieName:     "session_id",
		SessionCookieMaxAge:   time.Hour,
		CookieSameSite:        "lax",
		CORSOrigins:           []string{"*"},
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed"}, names)
}

func TestContainerWiresMemoryStack(t *testing.T) {
	injector := newContainer(memoryConfig())
	t.Cleanup(func() { _ = injector.Shutdown() })

	srv, err := do.Invoke[*http.Server](injector)
	require.NoError(t, err)

	rh := do.MustInvoke[*RedisHandle](injector)
	assert.Nil(t, rh.Client, "empty REDIS_URL disables the relay")

	cache := do.MustInvoke[idempotency.Cache](injector)
	assert.IsType(t, &idempotency.MemoryCache{}, cache)

	st := do.MustInvoke[*StoreHandle](injector)
	w, err := store.SeedDemo(context.Background(), st, st.Seeder)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wishlists/public/"+w.ShareToken.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Coffee maker")

	// Without a relay the subscriber loop returns at once.
	done := make(chan struct{})
	go func() {
		do.MustInvoke[*realtime.Broadcaster](injector).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcaster without relay kept running")
	}
}

func TestRedisIdempotencyNeedsReachableRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.IdempotencyBackend = "redis"
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	injector := newContainer(cfg)
	t.Cleanup(func() { _ = injector.Shutdown() })

	_, err := do.Invoke[idempotency.Cache](injector)
	assert.Error(t, err)
}

func TestServeSeedRequiresMemoryDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	cmd := newRootCommand()
	cmd.SetArgs([]string{"serve", "--seed"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER=memory")
}
