package rbac

import (
	"log/slog"
	"sort"

	"github.com/projtrack/projtrack/internal/access"
)

// Service runs the permission evaluator and reports each decision.
type Service struct {
	recorder Recorder
	logger   *slog.Logger
}

// NewService constructs a Service. A nil recorder discards decisions.
func NewService(recorder Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{recorder: recorder, logger: logger}
}

// Allow evaluates a global permission.
func (s *Service) Allow(ident *access.Identity, perm access.Permission) bool {
	allowed := access.Global(ident, perm)
	s.record(ident, CheckGlobal, perm.String(), allowed)
	return allowed
}

// AllowProject evaluates an action on one project.
func (s *Service) AllowProject(ident *access.Identity, project *access.Project, action access.ProjectAction) bool {
	allowed := access.ForProject(ident, project, action)
	s.record(ident, CheckProject, action.String(), allowed)
	return allowed
}

// AllowModule evaluates an action on one module of project.
func (s *Service) AllowModule(ident *access.Identity, module *access.Module, project *access.Project, action access.ModuleAction) bool {
	allowed := access.ForModule(ident, module, project, action)
	s.record(ident, CheckModule, action.String(), allowed)
	return allowed
}

// Granted lists the global permission keys the identity holds, sorted.
func (s *Service) Granted(ident *access.Identity) []string {
	out := make([]string, 0)
	for _, perm := range access.Permissions() {
		if access.Global(ident, perm) {
			out = append(out, perm.String())
		}
	}
	sort.Strings(out)
	return out
}

// Table returns the static grant table, sorted by permission key.
func (s *Service) Table() []Grant {
	perms := access.Permissions()
	grants := make([]Grant, 0, len(perms))
	for _, perm := range perms {
		roles := access.RolesFor(perm)
		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, string(role))
		}
		grants = append(grants, Grant{Permission: perm.String(), Roles: names})
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Permission < grants[j].Permission })
	return grants
}

func (s *Service) record(ident *access.Identity, check, key string, allowed bool) {
	s.recorder.RecordAuthzDecision(check, key, allowed)
	if !allowed {
		var userID int64
		if ident != nil {
			userID = ident.ID
		}
		s.logger.Debug("authorization denied", slog.String("check", check), slog.String("key", key), slog.Int64("user_id", userID))
	}
}
