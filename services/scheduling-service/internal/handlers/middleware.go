package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/slotline/slotline/libs/auth"
)

const (
	RoleProvider = "provider"
	RoleCustomer = "customer"
)

// TokenClaims are the verified access-token claims for a request.
type TokenClaims = auth.Claims

type claimsKey struct{}

// RequireAuth rejects requests without a valid bearer token and stashes the
// claims in the request context.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// ClaimsFromContext returns the request's verified claims, or nil.
func ClaimsFromContext(ctx context.Context) *TokenClaims {
	claims, _ := ctx.Value(claimsKey{}).(*TokenClaims)
	return claims
}

// WithClaims is a test hook for exercising handlers without a real token.
func WithClaims(ctx context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}
