package tracing

import (
	"log/slog"
	"net/http"
	"time"
)

// Middleware opens a root span per request. Trees are logged at debug, or
// at warn when the request took longer than slow; slow <= 0 disables the
// warning. traceID extracts the id to tag the tree with.
func Middleware(traceID func(*http.Request) string, slow time.Duration) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "tracing")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := StartSpan(r.Context(), r.Method+" "+r.URL.Path, traceID(r))
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()

			level := slog.LevelDebug
			if slow > 0 && span.Duration >= slow {
				level = slog.LevelWarn
			}
			if logger.Enabled(ctx, level) {
				span.Log(logger, level)
			}
		})
	}
}
