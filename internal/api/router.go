package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brightclinic/scheduling/internal/scheduling"
	"github.com/brightclinic/scheduling/pkg/logging"
)

type RouterConfig struct {
	Service *scheduling.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *logging.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health and observability
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Availability and conflicts
	r.Get("/availability", availabilityHandler(cfg.Service))
	r.Post("/appointments/check-conflicts", checkConflictsHandler(cfg.Service))

	// Appointments
	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Post("/appointments/recurring", createSeriesHandler(cfg.Service))
	r.Post("/appointments/bulk-status", bulkTransitionHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))

	// Lifecycle transitions
	r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Service, scheduling.ActionConfirm))
	r.Post("/appointments/{id}/start", transitionHandler(cfg.Service, scheduling.ActionStart))
	r.Post("/appointments/{id}/complete", transitionHandler(cfg.Service, scheduling.ActionComplete))
	r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Service, scheduling.ActionCancel))
	r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Service, scheduling.ActionNoShow))

	// Reporting
	r.Get("/statistics", statisticsHandler(cfg.Service))

	return r
}
