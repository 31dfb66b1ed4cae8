package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/promptkeeper/internal/api/handlers"
	"github.com/nikhilbhutani/promptkeeper/internal/api/middleware"
	"github.com/nikhilbhutani/promptkeeper/internal/auth"
	"github.com/nikhilbhutani/promptkeeper/internal/config"
	"github.com/nikhilbhutani/promptkeeper/internal/services"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	svc   *services.Services
	queue handlers.BulkQueue
	jwt   *auth.JWTMiddleware
	rl    *middleware.RateLimiter
}

// NewRouter wires the HTTP surface. db, rdb and q may be nil when the
// corresponding backend is not configured.
func NewRouter(cfg *config.Config, svc *services.Services, db *pgxpool.Pool, rdb *redis.Client, q handlers.BulkQueue) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		svc:   svc,
		queue: q,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret, svc.Identity),
		rl:    middleware.NewRateLimiter(float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst),
	}
}

// RateLimiter exposes the limiter so the caller can run its cleanup loop.
func (rt *Router) RateLimiter() *middleware.RateLimiter {
	return rt.rl
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	cors := middleware.DefaultCORSPolicy(rt.cfg.Server.CORSOrigins)
	cors.AllowCredentials = rt.cfg.Server.CORSCredentials
	cors.MaxAge = rt.cfg.Server.CORSMaxAge
	r.Use(middleware.CORS(cors))
	if rt.cfg.Server.RateLimitRPS > 0 {
		r.Use(rt.rl.Limit)
	}

	// Health and metrics endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis, rt.svc.Store)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	svc := rt.svc

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		userH := handlers.NewUserHandler(svc.Teams)
		r.Get("/me", userH.Me)

		// Prompt routes
		promptH := handlers.NewPromptHandler(svc.Prompts, svc.Poller)
		deleteH := handlers.NewDeletionHandler(svc.Analyzer, svc.Backups)
		usageH := handlers.NewUsageHandler(svc.Prompts, svc.Store, svc.Tracker, svc.Optimizer)
		r.Route("/prompts", func(r chi.Router) {
			r.Post("/", promptH.Create)
			r.Get("/", promptH.List)
			r.Get("/stream", promptH.Stream)
			r.Post("/impact", deleteH.BulkImpact)
			r.Get("/{id}", promptH.Get)
			r.Put("/{id}", promptH.Update)
			r.Delete("/{id}", deleteH.Delete)
			r.Get("/{id}/impact", deleteH.Impact)
			r.Post("/{id}/render", promptH.Render)
			r.Post("/{id}/usage", usageH.Track)
			r.Get("/{id}/analytics", usageH.Analytics)
			r.Post("/{id}/optimize", usageH.Optimize)
		})

		// Bulk routes
		bulkH := handlers.NewBulkHandler(svc.Bulk, svc.Analyzer, rt.queue, rt.cfg.Bulk.AsyncThreshold)
		r.Route("/bulk", func(r chi.Router) {
			r.Post("/", bulkH.Execute)
			r.Get("/{jobId}", bulkH.Job)
		})

		// Backup routes
		r.Route("/backups", func(r chi.Router) {
			r.Get("/", deleteH.ListBackups)
			r.Post("/{promptId}/restore", deleteH.Restore)
		})

		// Import/export routes
		transferH := handlers.NewTransferHandler(svc.Transfer)
		r.Get("/export", transferH.Export)
		r.Post("/import/analyze", transferH.Analyze)
		r.Post("/import", transferH.Import)

		// Team routes
		teamH := handlers.NewTeamHandler(svc.Teams)
		r.Route("/teams", func(r chi.Router) {
			r.Post("/", teamH.Create)
			r.Get("/{id}", teamH.Get)
			r.Post("/{id}/members", teamH.AddMember)
			r.Delete("/{id}/members/{userId}", teamH.RemoveMember)
		})

		// Webhook routes
		webhookH := handlers.NewWebhookHandler(svc.Webhooks)
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(auth.RequireSuperUser)
			r.Post("/", webhookH.Create)
			r.Get("/", webhookH.List)
			r.Delete("/{id}", webhookH.Delete)
		})

		// Admin routes
		adminH := handlers.NewAdminHandler(svc.Audit)
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireSuperUser)
			r.Get("/audit", adminH.AuditLogs)
		})
	})

	return r
}
