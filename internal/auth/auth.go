// Package auth identifies users by an opaque cookie token. The token is
// the user id; it is not a security boundary.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the token.
const CookieName = "token"

type ctxKey struct{}

// Middleware makes sure every request carries a token, issuing a new one
// for first-time visitors, and stores the user id in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
			token = c.Value
		} else {
			token = NewToken()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), UserIDFromToken(token))))
	})
}

// NewToken generates a token for a new user.
func NewToken() string {
	return uuid.NewString()
}

// UserIDFromToken maps a token to a user id. They are the same.
func UserIDFromToken(token string) string {
	return token
}

// WithUserID returns ctx carrying id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// UserID returns the user id stored by Middleware, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
