package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/raindrop/identity-service/internal/token"
)

type contextKey string

// ClaimsKey holds the verified access-token claims in the request context.
const ClaimsKey contextKey = "claims"

// Middleware guards routes behind the shared token verifier. Every failure
// maps to the same 401; the verifier logs the reason internally.
func Middleware(verifier *token.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "authorization header missing", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			claims, reason := verifier.Verify(r.Context(), parts[1])
			if reason != token.ReasonOK {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
