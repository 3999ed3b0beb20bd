/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logrus request logging
  4. CORS for browser clients

ROUTE GROUPS:
  /api/users/*         Registration, login, profile, deletion requests
  /api/transactions/*  Transfers and history (authenticated)
  /api/videos/*        Reward catalog and payouts (authenticated)
  /api/scores/*        Score submission and leaderboards (authenticated)
  /healthz             Liveness probe
  /metrics             Prometheus metrics

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/detofa/points-engine/auth"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, tokens *auth.Tokens, logger *logrus.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public routes: no principal required.
		r.Post("/users/register", h.Register)
		r.Post("/users/login", h.Login)

		// Everything else requires a verified principal. The middleware
		// rejects bad credentials before any store transaction is opened.
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(tokens))

			r.Route("/users", func(r chi.Router) {
				r.Get("/profile", h.Profile)
				r.Delete("/profile", h.RequestDeletion)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/transfer", h.Transfer)
				r.Get("/history", h.History)
			})

			r.Route("/videos", func(r chi.Router) {
				r.Get("/", h.ListVideos)
				r.Post("/", h.CreateVideo)
				r.Post("/check", h.CheckVideo)
				r.Post("/payout", h.Payout)
			})

			r.Route("/scores", func(r chi.Router) {
				r.Post("/", h.SubmitScore)
				r.Post("/top", h.TopScores)
				r.Post("/highestpergame", h.HighestScores)
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
