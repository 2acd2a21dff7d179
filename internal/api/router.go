/**
 * @description
 * HTTP router setup for the assistant service using go-chi/chi.
 */
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/transfa/assistant-service/internal/metrics"
	limits "github.com/transfa/assistant-service/pkg/middleware"
)

// RouterConfig holds the knobs the router needs beyond the handler itself.
type RouterConfig struct {
	Identity       IdentityConfig
	AllowedOrigins []string
	RequestTimeout time.Duration
	ChatLimiter    limits.Limiter
	Metrics        *metrics.Metrics
}

// NewRouter creates a new Chi router and registers assistant routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	// Without configured origins no cross-origin access is granted.
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(cfg.AllowedOrigins)))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Assistant service is healthy"))
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware(cfg.Identity))

		r.Group(func(r chi.Router) {
			if cfg.ChatLimiter != nil {
				r.Use(limits.RateLimitMiddleware(cfg.ChatLimiter, "chat", userOrIPKey, h.logger, cfg.Metrics))
			}
			r.Post("/chat/turns", h.handleChatTurn)
		})

		r.Get("/transfers/pending", h.handleListPending)
		r.Get("/transfers/history", h.handleListHistory)
		r.Post("/transfers/{id}/approve", h.handleApprove)
		r.Post("/transfers/{id}/reject", h.handleReject)
	})

	return r
}

func userOrIPKey(r *http.Request) string {
	if userID, ok := UserFromContext(r.Context()); ok {
		return "user:" + userID.String()
	}
	return "ip:" + limits.ClientIP(r)
}

// corsOptions allows credentials only when every origin is an exact match.
func corsOptions(origins []string) cors.Options {
	exact := true
	for _, o := range origins {
		if strings.Contains(o, "*") {
			exact = false
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: exact,
		MaxAge:           300,
	}
}
