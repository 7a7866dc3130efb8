package access

import "strings"

// GlobalRole is the system-wide role carried on an Identity.
type GlobalRole string

// Global roles.
const (
	RoleManager GlobalRole = "manager"
	RoleMember  GlobalRole = "member"
)

// legacyManagerRole is the value older user rows still carry for managers.
const legacyManagerRole = "department_manager"

// ParseGlobalRole maps an external role string onto a GlobalRole.
func ParseGlobalRole(raw string) (GlobalRole, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RoleManager), legacyManagerRole:
		return RoleManager, true
	case string(RoleMember):
		return RoleMember, true
	default:
		return "", false
	}
}

// Valid reports whether r is one of the known global roles.
func (r GlobalRole) Valid() bool {
	return r == RoleManager || r == RoleMember
}

// ProjectRole is the per-project role carried on a membership row.
type ProjectRole string

// Project roles.
const (
	ProjectRoleLeader ProjectRole = "leader"
	ProjectRoleMember ProjectRole = "member"
)

// ParseProjectRole maps an external role string onto a ProjectRole.
func ParseProjectRole(raw string) (ProjectRole, bool) {
	switch ProjectRole(strings.ToLower(strings.TrimSpace(raw))) {
	case ProjectRoleLeader:
		return ProjectRoleLeader, true
	case ProjectRoleMember:
		return ProjectRoleMember, true
	default:
		return "", false
	}
}

// Identity is the authenticated actor every check is evaluated for.
type Identity struct {
	ID   int64      `json:"id"`
	Name string     `json:"name"`
	Role GlobalRole `json:"role"`
}

// IsManager reports whether the identity holds the manager role.
func (i *Identity) IsManager() bool {
	return i != nil && i.Role == RoleManager
}

// ProjectMember is one membership row of a project.
type ProjectMember struct {
	UserID int64       `json:"user_id"`
	Role   ProjectRole `json:"role"`
}

// Project is the slice of a project the evaluator reads.
type Project struct {
	ID      int64           `json:"id"`
	Status  string          `json:"status,omitempty"`
	Members []ProjectMember `json:"members"`
}

// Member looks up the membership row for userID. A project holds at most
// one row per user, so the first match is the only match.
func (p *Project) Member(userID int64) (ProjectMember, bool) {
	if p == nil {
		return ProjectMember{}, false
	}
	for _, m := range p.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return ProjectMember{}, false
}

// UserRef is a lookup-only reference to a user.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Module is the slice of a project module the evaluator reads.
type Module struct {
	ID         int64    `json:"id"`
	ProjectID  int64    `json:"project_id"`
	AssignedTo *UserRef `json:"assigned_to,omitempty"`
}

// assignedTo reports whether the module is assigned to userID.
func (m *Module) assignedTo(userID int64) bool {
	return m != nil && m.AssignedTo != nil && m.AssignedTo.ID == userID
}
