package http

import (
	"context"
	"net/http"
	"strings"

	"taskhive/internal/apperr"
	"taskhive/internal/auth"
	"taskhive/internal/logging"
	"taskhive/internal/observability"
)

type contextKey string

const claimsContextKey contextKey = "authClaims"

// authExempt lists path prefixes that never require a bearer token.
var authExempt = []string{
	"/health/",
	"/metrics",
	"/api/v1/auth/google/callback",
	"/api/v1/auth/refresh",
	"/api/v1/.well-known/",
	"/api/v1/webhooks/",
	"/docs",
}

func isAuthExempt(path string) bool {
	for _, prefix := range authExempt {
		if strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	return false
}

// AuthMiddleware validates the bearer token and attaches its claims to
// context. Expired tokens surface TOKEN_EXPIRED so clients refresh.
func AuthMiddleware(svc *auth.Service, logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isAuthExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				respondError(w, r, logger, apperr.Unauthorized("missing bearer token"))
				return
			}
			claims, err := svc.VerifyAccessToken(raw)
			if err != nil {
				respondError(w, r, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			ctx = observability.ContextWithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// currentClaims returns the authenticated claims, if any.
func currentClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// currentUserID returns the authenticated user id or empty.
func currentUserID(ctx context.Context) string {
	if claims, ok := currentClaims(ctx); ok {
		return claims.UserID
	}
	return ""
}
