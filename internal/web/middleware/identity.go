package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetbase/internal/config"
	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/logging"
)

// Identity reads the caller identity that the upstream identity provider
// placed in trusted headers and attaches it to the request context.
//
// Requests without a user id header pass through anonymously; RequireIdentity
// decides whether that is acceptable. A malformed user id or an unknown role
// is rejected outright. A missing role means member.
func Identity(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(cfg.UserIDHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				writeError(w, http.StatusUnauthorized, "invalid user id", "AUTH003")
				return
			}

			role := strings.ToLower(strings.TrimSpace(r.Header.Get(cfg.UserRoleHeader)))
			switch role {
			case "":
				role = core.RoleMember
			case core.RoleAdmin, core.RoleLeader, core.RoleMember:
			default:
				logging.FromContext(r.Context()).Warn("identity: unknown role", "role", role, "user_id", userID)
				writeError(w, http.StatusForbidden, "unknown role", "AUTH004")
				return
			}

			ctx := core.ContextWithIdentity(r.Context(), core.Identity{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity rejects anonymous requests.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := core.IdentityFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "missing user identity", "AUTH003")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole only lets callers holding one of roles through.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := core.IdentityFromContext(r.Context())
			if !ok || !slices.Contains(roles, id.Role) {
				logging.FromContext(r.Context()).Warn("identity: role denied",
					"path", r.URL.Path,
					"role", id.Role,
					"user_id", id.UserID,
				)
				writeError(w, http.StatusForbidden, "insufficient role", "AUTH005")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
