package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sleeplog-backend/internal/handlers"
	"sleeplog-backend/internal/middleware"
	"sleeplog-backend/internal/websocket"
)

func New(
	auth *middleware.Auth,
	authHandler *handlers.AuthHandler,
	sleepHandler *handlers.SleepHandler,
	pushHandler *handlers.PushHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Instrument)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	// Token endpoint rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/token", authHandler.Token)
		})

		// ──── Sleep Ledger Routes ────
		r.Route("/sleep", func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Post("/", sleepHandler.Log)
			r.Get("/", sleepHandler.List)
			r.Get("/last", sleepHandler.Last)
			r.Put("/replace", sleepHandler.ReplaceLast)
			r.Get("/stats", sleepHandler.Stats)
		})

		// ──── Push Routes ────
		r.Route("/push", func(r chi.Router) {
			r.Get("/vapid-public-key", pushHandler.VAPIDPublicKey) // Public

			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware)
				r.Post("/subscribe", pushHandler.Subscribe)
				r.Post("/unsubscribe", pushHandler.Unsubscribe)
			})
		})

		// ──── Notification Feedback Routes (public, opened from notifications) ────
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/{id}", notificationHandler.Get)
			r.Post("/feedback", notificationHandler.Feedback)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
