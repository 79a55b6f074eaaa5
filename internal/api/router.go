package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Reassign/internal/agents"
	"github.com/MikeSquared-Agency/Reassign/internal/config"
	"github.com/MikeSquared-Agency/Reassign/internal/reassign"
	"github.com/MikeSquared-Agency/Reassign/internal/scheduler"
	"github.com/MikeSquared-Agency/Reassign/internal/scoring"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

func NewRouter(s store.Store, svc *reassign.Service, sched *scheduler.Scheduler, d *agents.Dispatcher, tiers scoring.Tiers, cfg config.ServerConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(cfg.RateLimit))

	leads := NewLeadsHandler(s, svc, tiers)
	actions := NewActionsHandler(s, sched)
	agentsH := NewAgentsHandler(d)
	admin := NewAdminHandler(svc, sched)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(UserIDMiddleware)

		r.Post("/leads/{id}/reassign", leads.Reassign)
		r.Get("/leads/{id}/reassign/preview", leads.Preview)
		r.Get("/companies/{id}/reps", leads.Reps)

		r.Post("/actions", actions.Create)
		r.Get("/actions/{id}", actions.Get)
		r.Post("/actions/{id}/complete", actions.Complete)
		r.Post("/actions/{id}/fail", actions.Fail)

		r.Get("/agents", agentsH.List)
		r.Get("/agents/tasks/{id}", agentsH.GetTask)
		r.Post("/agents/{name}/tasks", agentsH.Submit)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminToken))
			r.Post("/admin/sweep", admin.Sweep)
			r.Post("/admin/actions/dispatch", admin.DispatchActions)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
