/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. AccessLog:  Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for admin tools

ROUTE GROUPS:
  /health                            Liveness
  /api/tenants/{tenant}/variants/*   Variant administration and mutations
  /api/tenants/{tenant}/orders/*     Order-driven adjusters
  /api/tenants/{tenant}/...          Reconciliation and queries

SECURITY NOTE:
  No authentication middleware. The X-Actor-ID header is trusted as given;
  run behind a gateway that authenticates callers.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(AccessLog(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ActorHeader},
	}))

	r.Get("/health", h.Health)

	r.Route("/api/tenants/{tenant}", func(r chi.Router) {
		// Variant routes
		r.Route("/variants", func(r chi.Router) {
			r.Post("/", h.CreateVariant)
			r.Get("/{id}", h.GetVariant)
			r.Delete("/{id}", h.DeleteVariant)
			r.Post("/{id}/mutations", h.Mutate)
			r.Get("/{id}/audit", h.Audit)
			r.Get("/{id}/quantity", h.QuantityAt)
		})

		// Order routes
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Post("/deduct", h.Deduct)
			r.Post("/restore", h.Restore)
		})

		// Reconciliation routes
		r.Route("/reconciliations", func(r chi.Router) {
			r.Post("/", h.Reconcile)
			r.Post("/sheet", h.ReconcileSheet)
		})

		r.Get("/low-stock", h.LowStock)
		r.Get("/history", h.History)
	})

	return r
}

// AccessLog logs one line per request.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("actor_id", r.Header.Get(ActorHeader)))
		})
	}
}
