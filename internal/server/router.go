package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/cloo-solutions/policyrag/internal/api"
	"github.com/cloo-solutions/policyrag/internal/api/handlers"
	"github.com/cloo-solutions/policyrag/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

// DefaultMaxBodyBytes bounds request bodies, uploads included.
const DefaultMaxBodyBytes int64 = 5 * 1024 * 1024

const readyTimeout = 2 * time.Second

type RouterConfig struct {
	AdminToken string
	// MaxBodyBytes of zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Ready, when set, is probed by /health; a failure answers 503.
	Ready func(ctx context.Context) error

	ChatHandler     *handlers.ChatHandler
	SearchHandler   *handlers.SearchHandler
	DocumentHandler *handlers.DocumentHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBody := cfg.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBody))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", health(cfg.Ready))

	r.Post("/chat", cfg.ChatHandler.Chat)
	r.Post("/search", cfg.SearchHandler.Search)
	r.Get("/categories", cfg.SearchHandler.Categories)
	r.Get("/types", cfg.SearchHandler.Types)
	r.Get("/stats", cfg.SearchHandler.Stats)
	r.Get("/documents/{id}", cfg.DocumentHandler.Get)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminToken))

		r.Post("/documents", cfg.DocumentHandler.Upload)
		r.Delete("/documents/{id}", cfg.DocumentHandler.Delete)
		r.Post("/index/rebuild", cfg.DocumentHandler.Rebuild)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", cfg.ChatHandler.ListRules)
			r.Post("/", cfg.ChatHandler.RegisterRule)
			r.Delete("/{key}", cfg.ChatHandler.RemoveRule)
		})
	})

	return r
}

func health(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				log.Printf("health: vector store not ready: %v", err)
				api.Error(w, http.StatusServiceUnavailable, "vector store unavailable")
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
