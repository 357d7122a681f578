package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer turns a handler panic into a logged error and a JSON 500.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
// When the handler already started the response, only the log line is
// written.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracked := wrapResponseWriter(w)
			defer func() {
				rvr := recover()
				switch {
				case rvr == nil:
					return
				case rvr == http.ErrAbortHandler:
					panic(rvr)
				}

				logger.LogAttrs(r.Context(), slog.LevelError, "handler panic",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.Any("value", rvr),
					slog.Bool("response_started", tracked.wroteHeader),
					slog.String("stack", string(debug.Stack())),
				)

				if !tracked.wroteHeader {
					writeError(tracked, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
				}
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}
