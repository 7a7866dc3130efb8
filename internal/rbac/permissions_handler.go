package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/platform/httpx"
	"github.com/projtrack/projtrack/internal/shared"
)

// PermissionsHandler exposes the caller's permissions and the grant table.
type PermissionsHandler struct {
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.mine)
	r.With(h.rbac.RequireAny(access.PermAccessUserManagement)).Get("/table", h.table)
}

type grantedPayload struct {
	Role        access.GlobalRole `json:"role"`
	Permissions []string          `json:"permissions"`
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	if ident == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.OK(w, http.StatusOK, "", grantedPayload{Role: ident.Role, Permissions: h.service.Granted(ident)})
}

func (h *PermissionsHandler) table(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, "", h.service.Table())
}
