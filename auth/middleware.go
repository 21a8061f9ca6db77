package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware handles JWT validation for incoming HTTP requests and injects
// the caller identity into the request context. Browsers cannot set headers
// on a WebSocket handshake, so the token is also read from access_token.
func Middleware(issuer *TokenIssuer, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				http.Error(w, "authorization token is missing", http.StatusUnauthorized)
				return
			}

			claims, err := issuer.ValidateToken(tokenStr)
			if err != nil {
				log.Debug(fmt.Sprintf("Rejected token on %s: %v", r.URL.Path, err))
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID, claims.Roles...)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		// Expecting the standard "Bearer <token>" format
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
