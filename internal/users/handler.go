package users

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/platform/httpx"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(access.PermViewUsers)).Get("/", h.listUsers)
	r.Get("/{id}", h.getUser)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(access.PermManageUsers))
		r.Post("/", h.createUser)
		r.Put("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	filter := Filter{Search: strings.TrimSpace(r.URL.Query().Get("search"))}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, ok := access.ParseGlobalRole(raw)
		if !ok {
			httpx.Fail(w, http.StatusBadRequest, "unknown role")
			return
		}
		filter.Role = role
	}
	users, err := h.service.ListUsers(r.Context(), shared.IdentityFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), shared.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateUser(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.OK(w, http.StatusCreated, "user created", created)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	var in UpdateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), shared.IdentityFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpx.OK(w, http.StatusOK, "user updated", user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), shared.IdentityFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	httpx.OK(w, http.StatusOK, "user deleted", nil)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, message := httpx.Classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.Fail(w, status, message)
}
