package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"codenetic/internal/shared/auth"
)

type ContextKey string

const UserIDKey ContextKey = "user_id"

// UserIDFromContext returns the local user id set by Auth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

// WithUserID stores a user id the way Auth does. Handler tests use it to skip token minting.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// Auth requires a valid session token from the Authorization header, falling
// back to the access_token cookie.
func Auth(verifier *auth.SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				scheme, value, found := strings.Cut(authHeader, " ")
				if !found || !strings.EqualFold(scheme, "Bearer") || value == "" {
					writeJSONError(w, http.StatusUnauthorized, "Invalid authorization header format")
					return
				}
				token = value
			} else if cookie, err := r.Cookie("access_token"); err == nil {
				token = cookie.Value
			} else {
				writeJSONError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
