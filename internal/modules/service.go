package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/projects"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
)

// ProjectLookup loads the project a module belongs to.
type ProjectLookup interface {
	Get(ctx context.Context, id int64) (*projects.Project, error)
}

// Service applies the permission rules to module operations.
type Service struct {
	repo     Repository
	projects ProjectLookup
	authz    *rbac.Service
	logger   *slog.Logger
}

// NewService builds a Service.
func NewService(repo Repository, projects ProjectLookup, authz *rbac.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, projects: projects, authz: authz, logger: logger}
}

// ListForProject returns the modules of a project the caller may view, each
// flagged with whether the caller may update it.
func (s *Service) ListForProject(ctx context.Context, ident *access.Identity, projectID int64) ([]Module, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	scope := project.Access()
	if !s.authz.AllowProject(ident, scope, access.ActionViewProject) {
		return nil, shared.ErrForbidden
	}
	list, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	views := make([]access.Module, len(list))
	for i := range list {
		views[i] = *list[i].Access()
	}
	updatable := make(map[int64]bool, len(list))
	for _, id := range access.UpdatableModules(ident, views, map[int64]*access.Project{projectID: scope}) {
		updatable[id] = true
	}
	for i := range list {
		list[i].CanUpdate = updatable[list[i].ID]
	}
	return list, nil
}

// ListForUser returns the modules assigned to userID, tagged with their
// project names. Callers see their own assignments; seeing someone else's
// requires view_users. Modules in projects the caller cannot view are left out.
func (s *Service) ListForUser(ctx context.Context, ident *access.Identity, userID int64) ([]Module, error) {
	if ident == nil {
		return nil, shared.ErrForbidden
	}
	if ident.ID != userID && !s.authz.Allow(ident, access.PermViewUsers) {
		return nil, shared.ErrForbidden
	}
	list, err := s.repo.ListByAssignee(ctx, userID)
	if err != nil {
		return nil, err
	}
	scopes := make(map[int64]*access.Project)
	names := make(map[int64]string)
	out := make([]Module, 0, len(list))
	for _, m := range list {
		scope, ok := scopes[m.ProjectID]
		if !ok {
			project, err := s.projects.Get(ctx, m.ProjectID)
			if err != nil {
				return nil, err
			}
			scope = project.Access()
			scopes[m.ProjectID] = scope
			names[m.ProjectID] = project.Name
		}
		if !access.ForModule(ident, m.Access(), scope, access.ActionViewModule) {
			continue
		}
		m.ProjectName = names[m.ProjectID]
		m.CanUpdate = access.CanUpdateModule(ident, m.Access(), scope)
		out = append(out, m)
	}
	return out, nil
}

// Get loads a module the caller may view.
func (s *Service) Get(ctx context.Context, ident *access.Identity, id int64) (*Module, error) {
	m, scope, err := s.load(ctx, ident, id, access.ActionViewModule)
	if err != nil {
		return nil, err
	}
	m.CanUpdate = access.CanUpdateModule(ident, m.Access(), scope)
	return m, nil
}

func (s *Service) load(ctx context.Context, ident *access.Identity, id int64, action access.ModuleAction) (*Module, *access.Project, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	project, err := s.projects.Get(ctx, m.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	scope := project.Access()
	if !s.authz.AllowModule(ident, m.Access(), scope, action) {
		return nil, nil, shared.ErrForbidden
	}
	return m, scope, nil
}

// Create adds a module to a project. Leaders and managers only.
func (s *Service) Create(ctx context.Context, ident *access.Identity, projectID int64, in CreateInput) (*Module, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	scope := project.Access()
	if !s.authz.AllowProject(ident, scope, access.ActionEditProject) {
		return nil, shared.ErrForbidden
	}

	nm := NewModule{
		ProjectID:   projectID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
	}
	if nm.Name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
	}
	progress := 0
	if in.Progress != nil {
		progress = *in.Progress
	}
	nm.Status, nm.Progress = initialState(Status(in.Status), progress)
	if in.AssignedToID != nil {
		if err := requireMember(scope, *in.AssignedToID); err != nil {
			return nil, err
		}
		nm.AssignedToID = in.AssignedToID
	}
	if nm.StartDate, err = parseDate(in.StartDate); err != nil {
		return nil, err
	}
	if nm.EndDate, err = parseDate(in.EndDate); err != nil {
		return nil, err
	}
	if nm.StartDate != nil && nm.EndDate != nil && nm.EndDate.Before(*nm.StartDate) {
		return nil, fmt.Errorf("%w: end_date precedes start_date", shared.ErrInvalidInput)
	}

	m, err := s.repo.Create(ctx, nm)
	if err != nil {
		return nil, err
	}
	m.CanUpdate = true
	s.logger.Info("module created", slog.Int64("module_id", m.ID), slog.Int64("project_id", projectID), slog.Int64("by", ident.ID))
	return m, nil
}

// UpdateProgress sets a module's progress. The state follows the progress.
func (s *Service) UpdateProgress(ctx context.Context, ident *access.Identity, id int64, in ProgressInput) (*Module, error) {
	if in.Progress == nil || *in.Progress < 0 || *in.Progress > 100 {
		return nil, fmt.Errorf("%w: progress must be between 0 and 100", shared.ErrInvalidInput)
	}
	if _, _, err := s.load(ctx, ident, id, access.ActionUpdateModule); err != nil {
		return nil, err
	}
	m, err := s.repo.UpdateProgress(ctx, ProgressUpdate{
		ModuleID:  id,
		Progress:  *in.Progress,
		Status:    StatusFor(*in.Progress),
		Notes:     strings.TrimSpace(in.Notes),
		UpdatedBy: ident.ID,
	})
	if err != nil {
		return nil, err
	}
	m.CanUpdate = true
	return m, nil
}

// SetAssignee changes or clears the assignee. Leaders and managers only; the
// new assignee must be a member of the project.
func (s *Service) SetAssignee(ctx context.Context, ident *access.Identity, id int64, userID *int64) (*Module, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.Get(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := project.Access()
	if !s.authz.AllowProject(ident, scope, access.ActionEditProject) {
		return nil, shared.ErrForbidden
	}
	if userID != nil {
		if err := requireMember(scope, *userID); err != nil {
			return nil, err
		}
	}
	updated, err := s.repo.SetAssignee(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	updated.CanUpdate = true
	return updated, nil
}

// Delete removes a module. Leaders and managers only.
func (s *Service) Delete(ctx context.Context, ident *access.Identity, id int64) error {
	if _, _, err := s.load(ctx, ident, id, access.ActionDeleteModule); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("module deleted", slog.Int64("module_id", id), slog.Int64("by", ident.ID))
	return nil
}

func requireMember(project *access.Project, userID int64) error {
	if _, ok := project.Member(userID); !ok {
		return fmt.Errorf("%w: assignee must be a member of the project", shared.ErrInvalidInput)
	}
	return nil
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
