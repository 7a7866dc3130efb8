package access

import "strings"

// Permission is a global capability key. Values can only be obtained from the
// exported variables below or from ParsePermission; the zero value is denied
// everywhere.
type Permission struct{ key string }

// Global permissions.
var (
	PermViewAllProjects = Permission{"view_all_projects"}
	PermCreateProject   = Permission{"create_project"}
	PermEditAllProjects = Permission{"edit_all_projects"}
	PermDeleteProject   = Permission{"delete_project"}
	PermViewOwnProjects = Permission{"view_own_projects"}
	PermEditOwnProjects = Permission{"edit_own_projects"}

	PermUpdateAllModules     = Permission{"update_all_modules"}
	PermUpdateProjectModules = Permission{"update_project_modules"}
	PermUpdateOwnModules     = Permission{"update_own_modules"}
	PermViewAllModules       = Permission{"view_all_modules"}

	PermManageUsers          = Permission{"manage_users"}
	PermViewUsers            = Permission{"view_users"}
	PermAccessUserManagement = Permission{"access_user_management"}

	PermAccessDashboard = Permission{"access_dashboard"}
)

// String returns the wire key of the permission.
func (p Permission) String() string { return p.key }

// rolePermissions is the static grant table. Managers are short-circuited by
// Global and never reach it, but they are listed to keep the table complete.
var rolePermissions = map[Permission][]GlobalRole{
	PermViewAllProjects: {RoleManager},
	PermCreateProject:   {RoleManager},
	PermEditAllProjects: {RoleManager},
	PermDeleteProject:   {RoleManager},
	PermViewOwnProjects: {RoleManager, RoleMember},
	PermEditOwnProjects: {RoleManager, RoleMember},

	PermUpdateAllModules:     {RoleManager},
	PermUpdateProjectModules: {RoleManager, RoleMember},
	PermUpdateOwnModules:     {RoleManager, RoleMember},
	PermViewAllModules:       {RoleManager, RoleMember},

	PermManageUsers:          {RoleManager},
	PermViewUsers:            {RoleManager},
	PermAccessUserManagement: {RoleManager},

	PermAccessDashboard: {RoleManager, RoleMember},
}

var permissionsByKey = func() map[string]Permission {
	out := make(map[string]Permission, len(rolePermissions))
	for p := range rolePermissions {
		out[p.key] = p
	}
	return out
}()

// ParsePermission resolves an external key. Unknown keys yield the zero
// Permission, which no role holds.
func ParsePermission(raw string) (Permission, bool) {
	p, ok := permissionsByKey[strings.TrimSpace(raw)]
	return p, ok
}

// Permissions lists every known permission key in the grant table.
func Permissions() []Permission {
	out := make([]Permission, 0, len(rolePermissions))
	for p := range rolePermissions {
		out = append(out, p)
	}
	return out
}

// RolesFor returns a copy of the roles holding p.
func RolesFor(p Permission) []GlobalRole {
	roles := rolePermissions[p]
	if roles == nil {
		return nil
	}
	out := make([]GlobalRole, len(roles))
	copy(out, roles)
	return out
}

// ProjectAction is an action checked against a specific project.
type ProjectAction struct{ key string }

// Project actions.
var (
	ActionEditProject = ProjectAction{"edit_project"}
	ActionViewProject = ProjectAction{"view_project"}
)

func (a ProjectAction) String() string { return a.key }

// ParseProjectAction resolves an external project action key.
func ParseProjectAction(raw string) (ProjectAction, bool) {
	switch strings.TrimSpace(raw) {
	case ActionEditProject.key:
		return ActionEditProject, true
	case ActionViewProject.key:
		return ActionViewProject, true
	default:
		return ProjectAction{}, false
	}
}

// ModuleAction is an action checked against a specific module.
type ModuleAction struct{ key string }

// Module actions.
var (
	ActionUpdateModule = ModuleAction{"update_module"}
	ActionDeleteModule = ModuleAction{"delete_module"}
	ActionViewModule   = ModuleAction{"view_module"}
)

func (a ModuleAction) String() string { return a.key }

// ParseModuleAction resolves an external module action key.
func ParseModuleAction(raw string) (ModuleAction, bool) {
	switch strings.TrimSpace(raw) {
	case ActionUpdateModule.key:
		return ActionUpdateModule, true
	case ActionDeleteModule.key:
		return ActionDeleteModule, true
	case ActionViewModule.key:
		return ActionViewModule, true
	default:
		return ModuleAction{}, false
	}
}
