package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medagenda/clinic-scheduling/internal/identity"
	"github.com/medagenda/clinic-scheduling/pkg/logging"
)

type RouterConfig struct {
	Service   SchedulingService
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret string
	Env       string
	Version   string
	Logger    *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Unauthenticated surface
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Scheduling surface
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.JWTSecret))

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
		r.Patch("/appointments/{id}/notes", updateNotesHandler(cfg.Service))
		r.Get("/doctors/{id}/appointments", listDoctorAppointmentsHandler(cfg.Service))
	})

	return r
}
