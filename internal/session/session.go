// Package session identifies the shopper behind a request. The id scopes the
// cart and checkout state the browser used to keep in localStorage.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderName        = "X-Session-ID"
	DefaultCookieName = "sf_session"
	cookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey struct{}

// WithID stores the session id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ID returns the session id stored in ctx, or "" when there is none.
func ID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware resolves the session id from the X-Session-ID header or the
// session cookie, issuing a new cookie when neither carries a valid id.
func Middleware(cookieName string, secure bool) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := normalize(r.Header.Get(HeaderName))
			if id == "" {
				if c, err := r.Cookie(cookieName); err == nil {
					id = normalize(c.Value)
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   int(cookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}

// normalize accepts only UUIDs so arbitrary strings never become storage keys.
func normalize(raw string) string {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return parsed.String()
}
