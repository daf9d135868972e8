package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/talkinghead/internal/api/handlers"
	"github.com/nikhilbhutani/talkinghead/internal/api/middleware"
	"github.com/nikhilbhutani/talkinghead/internal/config"
	"github.com/nikhilbhutani/talkinghead/internal/pipeline"
)

type Router struct {
	mux      *chi.Mux
	redis    *redis.Client
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	jobs     handlers.JobStore
	queue    handlers.Enqueuer
}

// NewRouter wires the HTTP API. rdb, jobs and q may be nil, in which case
// the asynchronous job routes are not mounted.
func NewRouter(cfg *config.Config, p *pipeline.Pipeline, rdb *redis.Client, jobs handlers.JobStore, q handlers.Enqueuer) *Router {
	return &Router{
		mux:      chi.NewRouter(),
		redis:    rdb,
		cfg:      cfg,
		pipeline: p,
		jobs:     jobs,
		queue:    q,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	if rt.cfg.Server.RateLimitRPS > 0 {
		rl := middleware.NewRateLimiter(rt.cfg.Server.RateLimitRPS, rt.cfg.Server.RateLimitBurst)
		r.Use(rl.Limit)
	}

	required := map[string]handlers.Check{
		"storage": func(context.Context) error { return rt.pipeline.Ready() },
	}
	// /generate works without redis; only the job API needs it.
	optional := map[string]handlers.Check{}
	if rt.redis != nil {
		optional["redis"] = handlers.RedisCheck(rt.redis)
	}
	health := handlers.NewHealthHandler(required, optional)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	expose := rt.cfg.Server.ExposeErrorDetails

	generateH := handlers.NewGenerateHandler(rt.pipeline, expose)
	r.Post("/generate", generateH.Generate)

	if rt.jobs != nil && rt.queue != nil {
		jobH := handlers.NewJobHandler(rt.pipeline, rt.jobs, rt.queue, expose)
		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Post("/", jobH.Create)
			r.Get("/{id}", jobH.Get)
			r.Get("/{id}/video", jobH.Video)
		})
	}

	return r
}
