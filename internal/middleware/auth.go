package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kassandra-hq/kassandra/internal/auth"
	"github.com/kassandra-hq/kassandra/internal/httputil"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	claimsKey contextKey = "claims"
)

// UserID returns the authenticated user's ID from the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// ClaimsFrom returns the token claims from the request context.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// WithUserID injects a user ID into a context. Used by the assistant and in
// tests, where requests do not pass through the HTTP middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Auth validates the bearer token and its session, then stores the user ID
// on the request context. A token whose session was revoked is rejected even
// if the signature is still valid.
func Auth(tokens *auth.Manager, sessions *auth.SessionCache, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.Unauthorized(w, "missing bearer token")
				return
			}

			claims, err := tokens.ParseToken(token)
			if err != nil {
				httputil.Unauthorized(w, "invalid token")
				return
			}

			sess, err := sessions.GetByTokenHash(r.Context(), auth.HashToken(token))
			if err != nil {
				httputil.Unauthorized(w, "session expired or revoked")
				return
			}
			if sess.UserID != claims.Subject {
				log.WithField("session_user", sess.UserID).WithField("token_user", claims.Subject).Warn("session user mismatch")
				httputil.Unauthorized(w, "invalid token")
				return
			}
			sessions.Touch(r.Context(), sess)

			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
