package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"wishlist_backend/internal/metrics"
)

type RouterConfig struct {
	Logger       logrus.FieldLogger
	Metrics      *metrics.Metrics
	CORSOrigins  []string
	Reservations *ReservationHandler
	Contribution *ContributionHandler
	Wishlists    *WishlistHandler
	Health       *HealthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", idempotencyKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", cfg.Health.Live)
		r.Get("/health/ready", cfg.Health.Ready)

		r.Route("/items/{itemID}", func(r chi.Router) {
			r.Post("/reserve", cfg.Reservations.Reserve)
			r.Delete("/reserve", cfg.Reservations.Cancel)
			r.Post("/contribute", cfg.Contribution.Contribute)
		})

		r.Get("/wishlists/public/{token}", cfg.Wishlists.PublicView)
		r.Get("/ws/{wishlistID}", cfg.Wishlists.Subscribe)
	})

	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.WithFields(logrus.Fields{
					"request_id":  middleware.GetReqID(r.Context()),
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      ww.Status(),
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
				}).Info("http_request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
