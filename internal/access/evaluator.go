// Package access holds the authorization rule set shared by the backend
// handlers and the client: global role permissions, per-project membership
// roles and per-module assignment rules.
//
// Every check is pure and total. Missing inputs deny, unknown keys deny, and
// a manager identity passes every project and module check.
package access

// Global reports whether identity holds perm system-wide.
func Global(identity *Identity, perm Permission) bool {
	if identity == nil || identity.Role == "" {
		return false
	}
	if identity.Role == RoleManager {
		return true
	}
	for _, role := range rolePermissions[perm] {
		if role == identity.Role {
			return true
		}
	}
	return false
}

// ForProject reports whether identity may perform action on project.
func ForProject(identity *Identity, project *Project, action ProjectAction) bool {
	if identity == nil || project == nil {
		return false
	}
	if identity.IsManager() {
		return true
	}
	member, ok := project.Member(identity.ID)
	if !ok {
		return false
	}
	switch action {
	case ActionEditProject:
		return member.Role == ProjectRoleLeader
	case ActionViewProject:
		return true
	default:
		return false
	}
}

// CanUpdateModule reports whether identity may update module, given the
// project the module belongs to. Leaders may update any module of their
// project; plain members only the modules assigned to them.
func CanUpdateModule(identity *Identity, module *Module, project *Project) bool {
	if identity == nil || module == nil {
		return false
	}
	if identity.IsManager() {
		return true
	}
	member, ok := project.Member(identity.ID)
	if !ok {
		return false
	}
	if member.Role == ProjectRoleLeader {
		return true
	}
	return module.assignedTo(identity.ID)
}

// ForModule reports whether identity may perform action on module.
func ForModule(identity *Identity, module *Module, project *Project, action ModuleAction) bool {
	switch action {
	case ActionUpdateModule:
		return CanUpdateModule(identity, module, project)
	case ActionDeleteModule, ActionViewModule:
	default:
		return false
	}
	if identity == nil || module == nil {
		return false
	}
	if identity.IsManager() {
		return true
	}
	member, ok := project.Member(identity.ID)
	if !ok {
		return false
	}
	if action == ActionDeleteModule {
		return member.Role == ProjectRoleLeader
	}
	return true
}
