package modules

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/projtrack/projtrack/internal/platform/httpx"
	"github.com/projtrack/projtrack/internal/shared"
)

// Handler exposes the module endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers module routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects/{projectID}", h.listForProject)
	r.Post("/projects/{projectID}", h.create)
	r.Get("/users/{userID}", h.listForUser)
	r.Get("/{id}", h.get)
	r.Put("/{id}/progress", h.updateProgress)
	r.Put("/{id}/assignee", h.setAssignee)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) listForProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httpx.PathID(w, r, "projectID")
	if !ok {
		return
	}
	list, err := h.service.ListForProject(r.Context(), shared.IdentityFromContext(r.Context()), projectID)
	if err != nil {
		h.fail(w, "list modules", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", list)
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.PathID(w, r, "userID")
	if !ok {
		return
	}
	list, err := h.service.ListForUser(r.Context(), shared.IdentityFromContext(r.Context()), userID)
	if err != nil {
		h.fail(w, "list assigned modules", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httpx.PathID(w, r, "projectID")
	if !ok {
		return
	}
	var in CreateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.Create(r.Context(), shared.IdentityFromContext(r.Context()), projectID, in)
	if err != nil {
		h.fail(w, "create module", err)
		return
	}
	httpx.OK(w, http.StatusCreated, "module created", m)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.service.Get(r.Context(), shared.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get module", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", m)
}

func (h *Handler) updateProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	var in ProgressInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.UpdateProgress(r.Context(), shared.IdentityFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "update module progress", err)
		return
	}
	httpx.OK(w, http.StatusOK, "module progress updated", m)
}

func (h *Handler) setAssignee(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	var in AssigneeInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.SetAssignee(r.Context(), shared.IdentityFromContext(r.Context()), id, in.AssignedToID)
	if err != nil {
		h.fail(w, "set module assignee", err)
		return
	}
	httpx.OK(w, http.StatusOK, "module assignee updated", m)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.IdentityFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete module", err)
		return
	}
	httpx.OK(w, http.StatusOK, "module deleted", nil)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, message := httpx.Classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.Fail(w, status, message)
}
