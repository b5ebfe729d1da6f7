package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
)

// CookieName holds the access token for browser clients.
const CookieName = "access_token"

type MiddlewareConfig struct {
	// OnAuthenticated runs after a token is verified, before the handler.
	OnAuthenticated func(ctx context.Context, session models.Session) error
}

// Middleware requires a valid access token from the Authorization header or
// the access token cookie and stores the session in the request context.
func Middleware(verifier TokenVerifier, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				respondUnauthorized(w, "auth verifier not configured")
				return
			}

			token, ok := TokenFromRequest(r)
			if !ok {
				logger.Debug("Auth failure: missing token", map[string]interface{}{
					"path": r.URL.Path,
				})
				respondUnauthorized(w, "missing authorization header")
				return
			}

			session, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("Auth failure: token invalid", map[string]interface{}{
					"path":  r.URL.Path,
					"error": err.Error(),
				})
				respondUnauthorized(w, "invalid token")
				return
			}

			ctx := WithSession(r.Context(), session)
			if cfg.OnAuthenticated != nil {
				if err := cfg.OnAuthenticated(ctx, session); err != nil {
					logger.Error("Session setup failed", map[string]interface{}{
						"path":    r.URL.Path,
						"user_id": session.UserID,
						"error":   err.Error(),
					})
					writeJSONError(w, http.StatusInternalServerError, "failed to load session")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProtectPrefix redirects requests under prefix to loginPath when they carry
// no valid session. Other paths pass through untouched.
func ProtectPrefix(verifier TokenVerifier, prefix, loginPath string) func(http.Handler) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !underPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}

			if token, ok := TokenFromRequest(r); ok && verifier != nil {
				if session, err := verifier.Verify(token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
					return
				}
			}

			target := loginPath
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// TokenFromRequest reads the bearer token, falling back to the access token
// cookie.
func TokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return extractBearerToken(header)
	}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusUnauthorized, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logger.Error("Failed to encode auth error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
