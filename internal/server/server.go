// Package server implements the HTTP transport layer for busbridge.
//
// Handlers are deliberately thin: they validate caller input, build a
// request descriptor, and hand it to the transit client. All resilience
// logic (caching, coalescing, retries, classification) lives behind the
// client boundary.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	transit "github.com/transitwatch/busbridge/internal"
	"github.com/transitwatch/busbridge/internal/bustime"
	"github.com/transitwatch/busbridge/internal/config"
	"github.com/transitwatch/busbridge/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// TransitClient is the caller-facing surface of the resilient client.
type TransitClient interface {
	Fetch(ctx context.Context, d bustime.Descriptor) (*transit.Result, error)
	Invalidate(ctx context.Context, prefix string)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Client         TransitClient
	Cache          config.CacheConfig // per-endpoint TTL lookup
	Metrics        *telemetry.Metrics // nil = no instrumentation
	MetricsHandler http.Handler       // nil = no /metrics endpoint
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Transit data API
	r.Route("/v1", func(r chi.Router) {
		r.Get("/time", s.handleTime)
		r.Get("/routes", s.handleRoutes)
		r.Get("/routes/{rt}/directions", s.handleDirections)
		r.Get("/stops", s.handleStops)
		r.Get("/patterns", s.handlePatterns)
		r.Get("/predictions", s.handlePredictions)
		r.Get("/vehicles", s.handleVehicles)
	})

	// Administrative surface
	r.Post("/admin/cache/invalidate", s.handleInvalidate)

	return r
}

type server struct {
	deps Deps
}
