package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/miroslavpejic85/mirotalk-admin/internal/auth"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logging"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
)

type contextKey string

const claimsContextKey contextKey = "claims"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RequireAuth checks the bearer token. A missing token is 401, an invalid
// or expired one 403.
func RequireAuth(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logging.WithComponent("auth")

			token := bearerToken(r)
			if token == "" {
				log.Warn().Str("ip", ClientIP(r)).Str("path", logutil.SanitizeForLog(r.URL.Path)).Msg("no token provided")
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				log.Warn().Str("ip", ClientIP(r)).Str("path", logutil.SanitizeForLog(r.URL.Path)).Msg("invalid token")
				writeError(w, http.StatusForbidden, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetClaims returns the claims RequireAuth stored on the request.
func GetClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsContextKey).(*auth.Claims)
	return claims
}
