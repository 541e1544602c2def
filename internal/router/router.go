package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"veochat-backend/internal/handlers"
	"veochat-backend/internal/middleware"
	"veochat-backend/internal/websocket"
)

func New(
	chatHandler *handlers.ChatHandler,
	jobHandler *handlers.JobHandler,
	blobHandler *handlers.BlobHandler,
	keyHandler *handlers.KeyHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {

		// ──── API Key ────
		r.Route("/key", func(r chi.Router) {
			r.Get("/", keyHandler.Status)
			r.Post("/", keyHandler.Set)
			r.Delete("/", keyHandler.Clear)
		})

		// ──── Chat Sessions ────
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", chatHandler.CreateSession)
			r.Get("/", chatHandler.ListSessions)
			r.Get("/{id}", chatHandler.GetSession)
			r.Delete("/{id}", chatHandler.DiscardSession)
			r.Post("/{id}/messages", chatHandler.SubmitMessage)
			r.Get("/{id}/messages", chatHandler.ListMessages)
		})

		// ──── Message Attachments ────
		r.Get("/messages/{id}/image", chatHandler.ServeImage)

		// ──── Video Blobs ────
		r.Get("/blobs/{id}", blobHandler.ServeBlob)

		// ──── Generation Jobs ────
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/{id}", jobHandler.GetJob)
			r.Post("/{id}/cancel", jobHandler.CancelJob)
		})
	})

	// ──── WebSocket ────
	r.Get("/ws/sessions/{id}", wsHub.HandleWebSocket)

	return r
}
