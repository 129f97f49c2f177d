// Package api exposes the simulation over HTTP: JSON snapshots and queries,
// unit commands, index diagnostics, health probes, Prometheus metrics and
// the websocket snapshot stream.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opd-ai/go-rts/pkg/engine"
	"github.com/opd-ai/go-rts/pkg/health"
	"github.com/opd-ai/go-rts/pkg/logging"
	"github.com/opd-ai/go-rts/pkg/metrics"
	"github.com/opd-ai/go-rts/pkg/network"
)

// DefaultCORSOrigins is used when RouterConfig.CORSOrigins is empty
var DefaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:8080"}

// RouterConfig carries the router's dependencies. Game is required; the
// rest are optional and their routes are omitted when nil.
type RouterConfig struct {
	Game     *engine.Game
	Hub      http.Handler
	Health   *health.HealthChecker
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger

	// SpawnLimiter guards the spawn endpoints. Nil disables limiting.
	SpawnLimiter *network.IPRateLimiter

	CORSOrigins    []string
	DisableLogging bool
}

// NewRouter builds the HTTP handler. It starts no goroutines, so it can be
// served directly by httptest.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &handlers{game: cfg.Game, logger: logger.Component("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.LivenessHandler)
		r.Get("/ready", cfg.Health.ReadinessHandler)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Hub != nil {
		r.Handle("/ws", cfg.Hub)
	}

	spawnGuard := func(next http.Handler) http.Handler { return next }
	if cfg.SpawnLimiter != nil {
		spawnGuard = cfg.SpawnLimiter.Middleware
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Get("/state", h.getState)
		r.Get("/area", h.getArea)
		r.Get("/index", h.getIndex)
		r.Get("/map", h.getMap)

		r.With(spawnGuard).Post("/units", h.spawnUnit)
		r.With(spawnGuard).Post("/structures", h.spawnStructure)

		r.Route("/units/{id}", func(r chi.Router) {
			r.Get("/", h.getUnit)
			r.Delete("/", h.removeEntity)
			r.Post("/target", h.setTarget)
			r.Post("/sensor", h.attachSensor)
		})
		r.Delete("/entities/{id}", h.removeEntity)
	})

	return r
}
