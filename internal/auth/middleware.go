package auth

import (
	"context"
	"net/http"

	"github.com/sakif/pulsecheck/internal/model"
)

// CookieName is the HttpOnly cookie that carries the session JWT.
const CookieName = "token"

// contextKey is unexported so no other package can read or shadow our values.
type contextKey string

const principalKey contextKey = "principal"

// RequireAuth rejects requests without a valid session cookie with 401 and
// stores the Principal in the context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := extractPrincipal(r, tokens)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth attaches the Principal when a valid cookie is present but
// never blocks the request. Used on the enrollment and enrollable-courses
// routes, which also serve anonymous callers.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, err := extractPrincipal(r, tokens); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
			return
		}
		if !p.IsAdmin {
			writeAuthError(w, http.StatusForbidden, "forbidden", "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns (zero, false) for anonymous requests.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok && p.Authenticated()
}

func extractPrincipal(r *http.Request, tokens *TokenService) (model.Principal, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return model.Principal{}, err
	}
	return tokens.Validate(cookie.Value)
}

// writeAuthError matches the handler package's ErrorResponse shape. It is
// written by hand to keep auth free of a handler import.
func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + kind + `","message":"` + message + `"}`))
}
