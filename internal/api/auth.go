package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/nerrad567/graylogic-mqttlink/internal/auth"
)

// tokenQueryParam carries the token for WebSocket clients, which cannot set
// an Authorization header from a browser.
const tokenQueryParam = "access_token"

// requirePermission rejects requests whose bearer token lacks perm.
// With no JWT secret configured every request passes.
func (s *Server) requirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.secCfg.JWT.Secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw := bearerToken(r)
			if raw == "" {
				writeUnauthorized(w, "bearer token required")
				return
			}
			claims, err := auth.ParseToken(raw, s.secCfg.JWT.Secret)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}
			if !auth.HasPermission(claims.Role, perm) {
				s.logger.Warn("API permission denied",
					"subject", claims.Subject,
					"role", claims.Role,
					"permission", perm,
				)
				writeForbidden(w, "insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter on WebSocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get(tokenQueryParam)
	}
	return ""
}

// claimsFrom returns the verified claims for the request, if any.
func claimsFrom(ctx context.Context) *auth.CustomClaims {
	c, _ := ctx.Value(ctxKeyClaims).(*auth.CustomClaims) //nolint:errcheck // absent when auth is disabled
	return c
}
