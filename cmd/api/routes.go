package main

import (
	"net/http"

	"go.uber.org/zap"

	"codenetic/internal/shared/config"
	"codenetic/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	public := func(h http.HandlerFunc) http.Handler {
		return middleware.Metrics(h)
	}
	authMiddleware := middleware.Auth(deps.Sessions)
	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.Metrics(authMiddleware(h))
	}

	// Health check
	mux.Handle("GET /health", public(deps.HealthHandler.HandleHealth))

	// Instagram linking and publishing
	ig := deps.InstagramHandler
	mux.Handle("GET /api/instagram/oauth/url", protected(ig.HandleOAuthURL))
	mux.Handle("POST /api/instagram/oauth/callback", protected(ig.HandleConnect))
	mux.Handle("POST /api/instagram/posts", protected(ig.HandlePublish))
	mux.Handle("GET /api/instagram/accounts", protected(ig.HandleListAccounts))
	mux.Handle("DELETE /api/instagram/accounts/{id}", protected(ig.HandleDisconnect))

	// Graph webhooks (called by Meta, no session)
	mux.Handle("GET /webhooks/instagram", public(deps.WebhookHandler.HandleVerify))
	mux.Handle("POST /webhooks/instagram", public(deps.WebhookHandler.HandleEvent))

	// Apply global middleware
	handler := middleware.Logging(log.Named("access"))(middleware.CORS(cfg.Server.AllowedHosts)(mux))

	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Info("TLS security middleware enabled (HSTS)")
	}

	return handler
}
