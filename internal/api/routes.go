package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(h *Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/live", h.handleLive)
		r.Get("/toasts", h.handleToasts)
		r.Delete("/toasts/{id}", h.dismissToast)
		r.Get("/analytics", h.handleAnalytics)

		r.Post("/users", h.createUser)
		r.Patch("/users/{id}", h.updateUser)
		r.Delete("/users/{id}", h.deleteUser)

		r.Post("/todos", h.createTodo)
		r.Patch("/todos/{id}", h.updateTodo)
		r.Post("/todos/{id}/toggle", h.toggleTodo)
		r.Delete("/todos/{id}", h.deleteTodo)

		for _, name := range h.Resources() {
			r.Get("/"+name, h.handleView(name))
			r.Post("/"+name+"/refetch", h.handleRefetch(name))
		}
	})
	r.Get("/ws", h.HandleWS)

	return r
}
