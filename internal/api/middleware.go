package api

import (
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camlink/internal/logging"
)

// HTTPLoggingMiddleware logs every request once it completes. Level follows
// the status code: 5xx at error, 4xx at warn, preflight at debug.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" {
		attrs = append(attrs, slog.String("query", query))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	level := slog.LevelInfo
	switch {
	case method == "OPTIONS":
		level = slog.LevelDebug
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}
