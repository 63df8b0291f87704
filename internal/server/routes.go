package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/v1/{kind}", h.List)
	mux.HandleFunc("PATCH /api/v1/{kind}/state", h.UpdateState)
	mux.HandleFunc("DELETE /api/v1/{kind}/state", h.ClearState)
	mux.HandleFunc("PUT /api/v1/{kind}/page", h.SetPage)
	mux.HandleFunc("GET /api/v1/{kind}/{id}", h.GetEntity)
	mux.HandleFunc("POST /api/v1/{kind}/{id}/save", h.ToggleSave)

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
