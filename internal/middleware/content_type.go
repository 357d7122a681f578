package middleware

import (
	"mime"
	"net/http"
	"slices"
)

// RequireContentType rejects requests with a body whose media type is not
// one of allowed. Requests without a body pass through.
func RequireContentType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || !slices.Contains(allowed, mediaType) {
				writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
					"Content-Type must be "+allowed[0])
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON is RequireContentType for application/json.
func RequireJSON() func(http.Handler) http.Handler {
	return RequireContentType("application/json")
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	return r.ContentLength > 0 || len(r.TransferEncoding) > 0
}
