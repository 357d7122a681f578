package middleware

import (
	"net/http"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/model"
)

// RequireScope returns middleware that enforces scope requirements.
// Must be applied after an auth middleware.
// If multiple scopes are provided, having ANY of them is sufficient.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			for _, scope := range required {
				if p.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "FORBIDDEN",
				"Insufficient permissions. Required scope: "+required[0])
		})
	}
}

// RequireExtension is a convenience middleware for the extension scope.
func RequireExtension() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeExtension)
}

// RequireAccess gates dashboard routes by HTTP method. Safe methods need the
// read scope, anything that changes state needs admin. Extension-only keys
// pass neither check. Sessions carry every scope.
func RequireAccess() func(http.Handler) http.Handler {
	read := RequireScope(model.ScopeRead)
	write := RequireScope(model.ScopeAdmin)
	return func(next http.Handler) http.Handler {
		readNext, writeNext := read(next), write(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				readNext.ServeHTTP(w, r)
			default:
				writeNext.ServeHTTP(w, r)
			}
		})
	}
}

// RequireSession rejects principals that did not log in with a session
// token. Account-level operations such as key management use it.
func RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if p.AuthMethod != model.AuthMethodJWT {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "This operation requires a session login")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
