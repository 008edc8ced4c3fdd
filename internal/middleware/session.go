package middleware

import (
	"net/http"
	"strings"

	"github.com/dukerupert/botica/internal/cookie"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/session"
)

// Session ensures every request carries a session identifier.
// A missing or malformed botica_session cookie is replaced with a fresh one.
// A bearer token in the Authorization header is exposed through
// domain.TokenFromContext for API clients that don't keep the cookie jar
// in sync with the login response.
func Session(cookies *cookie.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := cookie.Get(r, cookie.SessionCookieName)
			if !session.ValidID(id) {
				id = session.NewID()
				cookies.SetSession(w, id)
			}

			ctx := domain.NewContextWithSession(r.Context(), id)
			if token := bearerToken(r); token != "" {
				ctx = domain.NewContextWithToken(ctx, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
