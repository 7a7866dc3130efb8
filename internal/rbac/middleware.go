package rbac

import (
	"net/http"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/platform/httpx"
	"github.com/projtrack/projtrack/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...access.Permission) func(http.Handler) http.Handler {
	return m.require(perms, false)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...access.Permission) func(http.Handler) http.Handler {
	return m.require(perms, true)
}

func (m Middleware) require(perms []access.Permission, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := shared.IdentityFromContext(r.Context())
			if ident == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if len(perms) == 0 || m.granted(ident, perms, all) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func (m Middleware) granted(ident *access.Identity, perms []access.Permission, all bool) bool {
	for _, perm := range perms {
		ok := m.Service.Allow(ident, perm)
		if ok && !all {
			return true
		}
		if !ok && all {
			return false
		}
	}
	return all
}
