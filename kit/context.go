package kit

import (
	"context"
	"log/slog"
)

// Transport names the surface a call arrived on.
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportMCP  Transport = "mcp"
	TransportQUIC Transport = "mcp_quic"
)

type contextKey string

const (
	transportKey  contextKey = "docswap_transport"
	sessionIDKey  contextKey = "docswap_session_id"
	traceIDKey    contextKey = "docswap_trace_id"
	remoteAddrKey contextKey = "docswap_remote_addr"
)

func WithTransport(ctx context.Context, t Transport) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to TransportHTTP.
func GetTransport(ctx context.Context) Transport {
	if v, ok := ctx.Value(transportKey).(Transport); ok {
		return v
	}
	return TransportHTTP
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(remoteAddrKey).(string)
	return v
}

// Logger returns base annotated with the transport and whichever of the
// trace ID, session ID and remote address ctx carries.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	attrs := []any{"transport", string(GetTransport(ctx))}
	if v := GetTraceID(ctx); v != "" {
		attrs = append(attrs, "trace_id", v)
	}
	if v := GetSessionID(ctx); v != "" {
		attrs = append(attrs, "session_id", v)
	}
	if v := GetRemoteAddr(ctx); v != "" {
		attrs = append(attrs, "remote_addr", v)
	}
	return base.With(attrs...)
}
