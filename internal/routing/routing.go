package routing

import (
	"net/http"
	"time"

	"tangled.org/agora.social/agora/internal/handlers"
	"tangled.org/agora.social/agora/internal/middleware"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultIdle = 10 * time.Minute

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers *handlers.Handler
	Verifier *middleware.Verifier
	Logger   zerolog.Logger
	// RateLimit overrides the default per-IP limits (optional)
	RateLimit *middleware.RateLimitConfig
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Set it only behind a proxy that overwrites those headers.
	TrustProxy bool
}

// DefaultRateLimitConfig returns the per-IP limits used when Config.RateLimit
// is nil: 10 writes/s burst 20, and 50 reads/s burst 100.
func DefaultRateLimitConfig() *middleware.RateLimitConfig {
	return &middleware.RateLimitConfig{
		WriteLimiter:  middleware.NewRateLimiter(10, 20, defaultIdle),
		GlobalLimiter: middleware.NewRateLimiter(50, 100, defaultIdle),
	}
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Probes
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Roles and audit
	mux.HandleFunc("GET /api/me", h.HandleMe)
	mux.HandleFunc("GET /api/roles/{id}", h.HandleGetRole)
	mux.HandleFunc("GET /api/audit/roles/{id}", h.HandleRoleHistory)

	// Feed and content
	mux.HandleFunc("GET /api/feed", h.HandleFeed)
	mux.HandleFunc("GET /api/posts/{id}/comments", h.HandleListComments)
	mux.HandleFunc("DELETE /api/posts/{id}", h.HandleDeletePost)
	mux.HandleFunc("DELETE /api/comments/{id}", h.HandleDeleteComment)

	// Reports
	mux.HandleFunc("POST /api/reports", h.HandleFileReport)
	mux.HandleFunc("GET /api/reports", h.HandleListReports)
	mux.HandleFunc("POST /api/reports/{id}/resolve", h.HandleResolveReport)

	// Blocks
	mux.HandleFunc("GET /api/blocks", h.HandleListBlocks)
	mux.HandleFunc("PUT /api/blocks/{id}", h.HandleBlock)
	mux.HandleFunc("DELETE /api/blocks/{id}", h.HandleUnblock)

	// Admin surface
	mux.HandleFunc("POST /api/admin", h.HandleAdmin)

	rateLimit := cfg.RateLimit
	if rateLimit == nil {
		rateLimit = DefaultRateLimitConfig()
	}

	// Apply middleware in order (innermost first, outermost last)
	var handler http.Handler = mux

	// 1. Limit request body size (innermost)
	handler = middleware.LimitBodyMiddleware(handler)

	// 2. Apply rate limiting
	handler = middleware.RateLimitMiddleware(rateLimit)(handler)

	// 3. Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// 4. Compress responses
	handler = gzhttp.GzipHandler(handler)

	// 5. Apply logging middleware
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	// 6. Resolve the bearer token, outside logging so the principal is logged
	handler = middleware.AuthMiddleware(cfg.Verifier)(handler)

	// 7. Resolve the client address used by auth, logging and rate limits
	handler = middleware.ClientIPMiddleware(cfg.TrustProxy)(handler)

	// 8. Trace every request (outermost)
	handler = otelhttp.NewHandler(handler, "agora")

	return handler
}
