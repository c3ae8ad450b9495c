// Package httpapi assembles the HTTP surface: shared middleware, public
// routes, the authenticated group and operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"racereg/internal/platform/metrics"
	"racereg/pkg/platform/httputil"
	"racereg/pkg/platform/middleware/auth"
	"racereg/pkg/platform/middleware/metadata"
	"racereg/pkg/platform/middleware/request"
	"racereg/pkg/platform/middleware/requesttime"
)

// Routes is implemented by each module's handler.
type Routes interface {
	Register(r chi.Router)
}

// PublicRoutes is implemented by handlers that also expose unauthenticated
// endpoints.
type PublicRoutes interface {
	RegisterPublic(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      auth.JWTValidator
	RequestTimeout time.Duration
	// Public handlers are mounted without authentication.
	Public []Routes
	// Private handlers are mounted behind RequireAuth. Those that also
	// implement PublicRoutes get their public routes mounted outside it.
	Private      []Routes
	HealthChecks map[string]HealthCheck
}

// NewRouter builds the chi router with the middleware chain every request
// passes through.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(metrics.LatencyMiddleware(opts.Metrics))
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}

	r.Get("/healthz", healthHandler(opts.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range opts.Public {
		h.Register(r)
	}
	for _, h := range opts.Private {
		if p, ok := h.(PublicRoutes); ok {
			p.RegisterPublic(r)
		}
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(opts.Validator, logger))
		for _, h := range opts.Private {
			h.Register(r)
		}
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
