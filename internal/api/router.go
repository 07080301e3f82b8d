package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/retrieva/internal/api/handlers"
	"github.com/nikhilbhutani/retrieva/internal/api/middleware"
	"github.com/nikhilbhutani/retrieva/internal/app"
	"github.com/nikhilbhutani/retrieva/internal/auth"
	"github.com/nikhilbhutani/retrieva/internal/cache"
	"github.com/nikhilbhutani/retrieva/internal/config"
	"github.com/nikhilbhutani/retrieva/internal/embedding"
	"github.com/nikhilbhutani/retrieva/internal/progress"
	"github.com/nikhilbhutani/retrieva/internal/rag"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the HTTP API. Queue, Audit, DB and Redis are
// optional.
type Deps struct {
	Config   *config.Config
	Pipeline *rag.Pipeline
	Embedder interface{ State() embedding.State }
	Progress *progress.Bus
	Queue    handlers.Enqueuer
	Audit    handlers.AuditReader
	DB       pinger
	Redis    pinger
}

// DepsFromApp adapts a built App, leaving absent services as untyped nils.
func DepsFromApp(a *app.App) Deps {
	d := Deps{
		Config:   a.Config,
		Pipeline: a.Pipeline,
		Embedder: a.Embedder,
		Progress: a.Progress,
	}
	if a.Queue != nil {
		d.Queue = a.Queue
	}
	if a.Audit != nil {
		d.Audit = a.Audit
	}
	if a.DB != nil {
		d.DB = a.DB
	}
	if a.Redis != nil {
		d.Redis = cache.NewCache(a.Redis)
	}
	return d
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		deps: deps,
	}
}

// Setup registers middleware and routes. ctx bounds background work such as
// the rate limiter's janitor.
func (rt *Router) Setup(ctx context.Context) http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.Operation)

	if cfg.Server.RateLimitRPS > 0 {
		rl := middleware.NewRateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		r.Use(rl.Limit)
	}

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Embedder, rt.deps.DB, rt.deps.Redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	var jwt *auth.JWTMiddleware
	if cfg.Auth.JWTSecret != "" {
		jwt = auth.NewJWTMiddleware(cfg.Auth.JWTSecret)
	}
	// require is a no-op when auth is disabled.
	require := func(perm auth.Permission) func(http.Handler) http.Handler {
		if jwt == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return auth.RequirePermission(perm)
	}

	ragH := handlers.NewRAGHandler(rt.deps.Pipeline, rt.deps.Queue, int64(cfg.Server.MaxUploadMB)<<20)
	sessionH := handlers.NewSessionHandler(rt.deps.Pipeline)
	eventsH := handlers.NewEventsHandler(rt.deps.Progress)
	adminH := handlers.NewAdminHandler(rt.deps.Audit)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if jwt != nil {
			r.Use(jwt.Authenticate)
		}

		r.With(require(auth.PermSessionsWrite)).Post("/ingest", ragH.Ingest)
		r.With(require(auth.PermSessionsWrite)).Post("/upload", ragH.Upload)
		r.With(require(auth.PermQuery)).Post("/query", ragH.Query)
		r.With(require(auth.PermQuery)).Post("/search", ragH.Search)
		r.With(require(auth.PermSessionsRead)).Get("/events", eventsH.Stream)

		r.Route("/sessions", func(r chi.Router) {
			r.With(require(auth.PermSessionsRead)).Get("/", sessionH.List)
			r.With(require(auth.PermSessionsRead)).Get("/{id}", sessionH.Get)
			r.With(require(auth.PermSessionsWrite)).Delete("/{id}", sessionH.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(require(auth.PermAdminRead))
			r.Get("/audit", adminH.AuditLogs)
		})
	})

	return r
}
