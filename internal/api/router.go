package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/lectura/internal/api/handler"
	mw "github.com/iconidentify/lectura/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	recordingHandler *handler.RecordingHandler,
	eventHandler *handler.EventHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(middleware.Recoverer)
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		// Pipeline stages run for hours; only non-streaming routes get a
		// request timeout, and the SSE stream is registered outside it.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(time.Minute))

			r.Get("/stats", healthHandler.Stats)

			r.Post("/recordings", recordingHandler.Submit)
			r.Get("/recordings", recordingHandler.List)
			r.Get("/recordings/{recordingID}", recordingHandler.Get)
			r.Get("/recordings/{recordingID}/status", recordingHandler.GetStatus)
			r.Get("/recordings/{recordingID}/clips", recordingHandler.ListClips)
			r.Delete("/recordings/{recordingID}", recordingHandler.Delete)

			r.Get("/events", eventHandler.List)
			r.Get("/events/recent", eventHandler.Recent)
			r.Get("/events/stats", eventHandler.Stats)
			r.Get("/events/categories", eventHandler.Categories)
			r.Get("/events/severities", eventHandler.Severities)
		})

		// Clip downloads on slow links can outlive the timeout too.
		r.Get("/recordings/{recordingID}/clips/{filename}", recordingHandler.ServeClip)
		r.Get("/events/stream", eventHandler.Stream)
	})

	return r
}
