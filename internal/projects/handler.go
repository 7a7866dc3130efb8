package projects

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/platform/httpx"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
)

// Handler exposes the project endpoints.
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

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.With(h.rbac.RequireAny(access.PermCreateProject)).Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.With(h.rbac.RequireAny(access.PermDeleteProject)).Delete("/", h.delete)
		r.Post("/members", h.addMember)
		r.Delete("/members/{userID}", h.removeMember)
		r.Put("/members/{userID}/role", h.setMemberRole)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), shared.IdentityFromContext(r.Context()))
	if err != nil {
		h.fail(w, "list projects", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.Create(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create project", err)
		return
	}
	httpx.OK(w, http.StatusCreated, "project created", project)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	project, err := h.service.Get(r.Context(), shared.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get project", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", project)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	var in UpdateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.Update(r.Context(), shared.IdentityFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "update project", err)
		return
	}
	httpx.OK(w, http.StatusOK, "project updated", project)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.IdentityFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete project", err)
		return
	}
	httpx.OK(w, http.StatusOK, "project deleted", nil)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	var in MemberInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.AddMember(r.Context(), shared.IdentityFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "add member", err)
		return
	}
	httpx.OK(w, http.StatusCreated, "member added", project)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httpx.PathID(w, r, "userID")
	if !ok {
		return
	}
	project, err := h.service.RemoveMember(r.Context(), shared.IdentityFromContext(r.Context()), id, userID)
	if err != nil {
		h.fail(w, "remove member", err)
		return
	}
	httpx.OK(w, http.StatusOK, "member removed", project)
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=leader member"`
}

func (h *Handler) setMemberRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httpx.PathID(w, r, "userID")
	if !ok {
		return
	}
	var in roleRequest
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.SetMemberRole(r.Context(), shared.IdentityFromContext(r.Context()), id, userID, in.Role)
	if err != nil {
		h.fail(w, "set member role", err)
		return
	}
	httpx.OK(w, http.StatusOK, "member role updated", project)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, message := httpx.Classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.Fail(w, status, message)
}
