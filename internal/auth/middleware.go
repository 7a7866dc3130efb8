package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/projtrack/projtrack/internal/platform/httpx"
	"github.com/projtrack/projtrack/internal/shared"
)

// LoadIdentity resolves the session user and stores its identity in the
// request context. Anonymous requests pass through untouched.
func LoadIdentity(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.UserID() == 0 {
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.Profile(r.Context(), sess.UserID())
			if err != nil {
				if !errors.Is(err, shared.ErrNotFound) {
					logger.Error("load identity", slog.Any("error", err))
					httpx.RespondError(w, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := shared.ContextWithIdentity(r.Context(), user.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLogin answers 401 when no identity was resolved.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.IdentityFromContext(r.Context()) == nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
