// Package shield provides the HTTP middleware stack in front of the docswap
// API: request tracing, security headers, upload body caps, CORS, per-IP rate
// limiting, maintenance mode and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	rl := shield.NewRateLimiter(shield.DefaultRateLimits(), "/health")
//	rl.StartGC(ctx, 5*time.Minute)
//	for _, mw := range shield.DefaultStack(shield.Config{MaxUploadBytes: 50 << 20, RateLimiter: rl}) {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
	"time"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Config selects and tunes the middlewares of DefaultStack.
type Config struct {
	Headers HeaderConfig

	// MaxUploadBytes caps multipart request bodies (default: 50 MB).
	MaxUploadBytes int64

	// CORSOrigins lists allowed origins; empty disables the CORS middleware.
	CORSOrigins []string

	// RateLimiter, when set, enforces per-IP limits after tracing.
	RateLimiter *RateLimiter

	// Maintenance, when set, blocks traffic while its flag is up.
	Maintenance *MaintenanceMode
}

func (c *Config) defaults() {
	if c.Headers == (HeaderConfig{}) {
		c.Headers = DefaultHeaders()
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
}

// DefaultRateLimits limits conversions to 30 per minute per client IP.
func DefaultRateLimits() map[string]RateLimitConfig {
	return map[string]RateLimitConfig{
		"POST /api/convert": {MaxRequests: 30, Window: time.Minute, Enabled: true},
	}
}

// DefaultStack returns the middleware chain in application order:
// Maintenance → CORS → HeadToGet → SecurityHeaders → MaxUploadBody → TraceID → RateLimiter.
func DefaultStack(cfg Config) []func(http.Handler) http.Handler {
	cfg.defaults()
	var stack []func(http.Handler) http.Handler
	if cfg.Maintenance != nil {
		stack = append(stack, cfg.Maintenance.Middleware)
	}
	if len(cfg.CORSOrigins) > 0 {
		stack = append(stack, CORS(cfg.CORSOrigins))
	}
	stack = append(stack,
		HeadToGet,
		SecurityHeaders(cfg.Headers),
		MaxUploadBody(cfg.MaxUploadBytes),
		TraceID,
	)
	if cfg.RateLimiter != nil {
		stack = append(stack, cfg.RateLimiter.Middleware)
	}
	return stack
}
