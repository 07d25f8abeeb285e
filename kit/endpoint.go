// Package kit holds the transport-agnostic endpoint type shared by the HTTP
// and MCP surfaces, plus the context keys they use to carry request metadata.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is a single operation decoupled from its transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the endpoint named op with its duration.
// Failures are logged at warn level.
func Logging(base *slog.Logger, op string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			logger := Logger(ctx, base)
			if err != nil {
				logger.Warn("endpoint failed", "op", op, "duration", time.Since(start), "error", err)
			} else {
				logger.Debug("endpoint", "op", op, "duration", time.Since(start))
			}
			return resp, err
		}
	}
}
