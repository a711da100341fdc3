package app

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"trigger-engine/internal/handlers"
	"trigger-engine/internal/middleware"
)

// Handler builds the HTTP surface: webhook ingress, the admin API, health, metrics and swagger
func (app *App) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Logging(app.Logger))

	// Swagger UI (no auth required)
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	if app.Config.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	var auth func(http.Handler) http.Handler
	if app.Auth != nil {
		auth = app.Auth.Middleware
	}

	h := handlers.New(
		app.Triggers,
		app.Dispatcher,
		app.Limiter,
		app.Metrics,
		app.healthChecks(),
		handlers.Options{MaxBodyBytes: app.Config.WebhookMaxBodyBytes},
		app.Logger,
	)
	h.Register(router, auth)
	return router
}

func (app *App) healthChecks() []handlers.HealthCheck {
	checks := []handlers.HealthCheck{{Name: "store", Check: app.Store.Health}}
	if app.RedisClient != nil {
		checks = append(checks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return app.RedisClient.Health(ctx) },
		})
	}
	return checks
}
