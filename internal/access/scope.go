package access

// AccessibleProjects returns the IDs of the projects identity may view, in
// input order. Managers see every project.
func AccessibleProjects(identity *Identity, projects []Project) []int64 {
	ids := make([]int64, 0, len(projects))
	for i := range projects {
		if ForProject(identity, &projects[i], ActionViewProject) {
			ids = append(ids, projects[i].ID)
		}
	}
	return ids
}

// UpdatableModules returns the IDs of the modules identity may update, in
// input order. projects is keyed by project ID; a module whose project is
// missing from it is only updatable by a manager.
func UpdatableModules(identity *Identity, modules []Module, projects map[int64]*Project) []int64 {
	ids := make([]int64, 0, len(modules))
	for i := range modules {
		project := projects[modules[i].ProjectID]
		if CanUpdateModule(identity, &modules[i], project) {
			ids = append(ids, modules[i].ID)
		}
	}
	return ids
}
