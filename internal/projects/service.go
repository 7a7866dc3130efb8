package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
)

// Service applies the permission rules to project operations.
type Service struct {
	repo   Repository
	authz  *rbac.Service
	logger *slog.Logger
}

// NewService builds a Service.
func NewService(repo Repository, authz *rbac.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, logger: logger}
}

// List returns the projects the caller may view.
func (s *Service) List(ctx context.Context, ident *access.Identity) ([]Project, error) {
	if ident == nil {
		return nil, shared.ErrForbidden
	}
	var (
		list []Project
		err  error
	)
	if s.authz.Allow(ident, access.PermViewAllProjects) {
		list, err = s.repo.List(ctx)
	} else {
		list, err = s.repo.ListForUser(ctx, ident.ID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(list))
	for i := range list {
		if access.ForProject(ident, list[i].Access(), access.ActionViewProject) {
			out = append(out, list[i])
		}
	}
	return out, nil
}

// Get loads a project the caller may view.
func (s *Service) Get(ctx context.Context, ident *access.Identity, id int64) (*Project, error) {
	return s.load(ctx, ident, id, access.ActionViewProject)
}

// Authorize loads a project and checks action on it for the caller.
func (s *Service) Authorize(ctx context.Context, ident *access.Identity, id int64, action access.ProjectAction) (*Project, error) {
	return s.load(ctx, ident, id, action)
}

func (s *Service) load(ctx context.Context, ident *access.Identity, id int64, action access.ProjectAction) (*Project, error) {
	project, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.AllowProject(ident, project.Access(), action) {
		return nil, shared.ErrForbidden
	}
	return project, nil
}

// Create adds a project. The caller must hold create_project.
func (s *Service) Create(ctx context.Context, ident *access.Identity, in CreateInput) (*Project, error) {
	if !s.authz.Allow(ident, access.PermCreateProject) {
		return nil, shared.ErrForbidden
	}
	np := NewProject{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Status:      StatusInitialContact,
	}
	if np.Name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
	}
	if in.Status != "" {
		status, err := parseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		np.Status = status
	}
	var err error
	if np.StartDate, err = parseDate(in.StartDate); err != nil {
		return nil, err
	}
	if np.EndDate, err = parseDate(in.EndDate); err != nil {
		return nil, err
	}
	if err := checkDates(np.StartDate, np.EndDate); err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(in.Members))
	for _, m := range in.Members {
		if _, dup := seen[m.UserID]; dup {
			return nil, fmt.Errorf("%w: user %d listed twice", shared.ErrConflict, m.UserID)
		}
		seen[m.UserID] = struct{}{}
		role, err := parseMemberRole(m.Role)
		if err != nil {
			return nil, err
		}
		np.Members = append(np.Members, access.ProjectMember{UserID: m.UserID, Role: role})
	}

	project, err := s.repo.Create(ctx, np)
	if err != nil {
		return nil, err
	}
	s.logger.Info("project created", slog.Int64("project_id", project.ID), slog.Int64("by", ident.ID))
	return project, nil
}

// Update changes project fields. Leaders and managers only.
func (s *Service) Update(ctx context.Context, ident *access.Identity, id int64, in UpdateInput) (*Project, error) {
	current, err := s.load(ctx, ident, id, access.ActionEditProject)
	if err != nil {
		return nil, err
	}
	var ch Changes
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
		}
		ch.Name = &name
	}
	ch.Description = in.Description
	if in.Status != nil {
		status, err := parseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		ch.Status = &status
	}
	if in.StartDate != nil {
		if ch.StartDate, err = parseDate(*in.StartDate); err != nil {
			return nil, err
		}
		ch.ClearStartDate = ch.StartDate == nil
	}
	if in.EndDate != nil {
		if ch.EndDate, err = parseDate(*in.EndDate); err != nil {
			return nil, err
		}
		ch.ClearEndDate = ch.EndDate == nil
	}
	start, end := current.StartDate, current.EndDate
	if ch.StartDate != nil || ch.ClearStartDate {
		start = ch.StartDate
	}
	if ch.EndDate != nil || ch.ClearEndDate {
		end = ch.EndDate
	}
	if err := checkDates(start, end); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, ch); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a project. The caller must hold delete_project.
func (s *Service) Delete(ctx context.Context, ident *access.Identity, id int64) error {
	if !s.authz.Allow(ident, access.PermDeleteProject) {
		return shared.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("project deleted", slog.Int64("project_id", id), slog.Int64("by", ident.ID))
	return nil
}

// AddMember adds a user to the project.
func (s *Service) AddMember(ctx context.Context, ident *access.Identity, projectID int64, in MemberInput) (*Project, error) {
	if _, err := s.load(ctx, ident, projectID, access.ActionEditProject); err != nil {
		return nil, err
	}
	role, err := parseMemberRole(in.Role)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddMember(ctx, projectID, in.UserID, role); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, projectID)
}

// RemoveMember drops a user from the project.
func (s *Service) RemoveMember(ctx context.Context, ident *access.Identity, projectID, userID int64) (*Project, error) {
	if _, err := s.load(ctx, ident, projectID, access.ActionEditProject); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, projectID)
}

// SetMemberRole changes a member's project role.
func (s *Service) SetMemberRole(ctx context.Context, ident *access.Identity, projectID, userID int64, rawRole string) (*Project, error) {
	if _, err := s.load(ctx, ident, projectID, access.ActionEditProject); err != nil {
		return nil, err
	}
	role, ok := access.ParseProjectRole(rawRole)
	if !ok {
		return nil, fmt.Errorf("%w: role must be leader or member", shared.ErrInvalidInput)
	}
	if err := s.repo.SetMemberRole(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, projectID)
}

func parseStatus(raw string) (Status, error) {
	status := Status(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown project status %q", shared.ErrInvalidInput, raw)
	}
	return status, nil
}

func parseMemberRole(raw string) (access.ProjectRole, error) {
	if strings.TrimSpace(raw) == "" {
		return access.ProjectRoleMember, nil
	}
	role, ok := access.ParseProjectRole(raw)
	if !ok {
		return "", fmt.Errorf("%w: role must be leader or member", shared.ErrInvalidInput)
	}
	return role, nil
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: dates use YYYY-MM-DD", shared.ErrInvalidInput)
	}
	return &t, nil
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return fmt.Errorf("%w: end_date precedes start_date", shared.ErrInvalidInput)
	}
	return nil
}
