// Package server wires HTTP handlers into a chi router for the presence
// relay.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns the router serving the given relay.
// It sets up handlers for health check, WebSocket endpoint, Prometheus
// metrics, and the presence test page.
func SetupRoutes(relay *Relay) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", HealthHandler)
	r.Get("/ws", relay.WebSocketHandler)
	r.Get("/test", TestPageHandler)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
