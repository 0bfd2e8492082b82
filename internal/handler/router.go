package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/invoice-relay/backend/internal/handler/admin"
	"github.com/zhouzirui/invoice-relay/backend/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/invoice-relay/backend/internal/middleware"
	chatService "github.com/zhouzirui/invoice-relay/backend/internal/service/chat"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/registry"
	"github.com/zhouzirui/invoice-relay/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. The same history and
// registry instances are shared by the socket and admin handlers.
func NewRouter(apiKey string, history *chatService.Service, processor chat.Processor, reg *registry.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	wsHandler := chat.NewWebSocketHandler(processor, history, reg)
	adminHandler := admin.New(history)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": reg.Count(),
		})
	})

	wsHandler.RegisterRoutes(r)

	r.Group(func(protected chi.Router) {
		protected.Use(middlewarePkg.APIKey(apiKey))
		adminHandler.RegisterRoutes(protected)
	})

	return r
}
