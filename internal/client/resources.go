package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/projtrack/projtrack/internal/access"
)

// User is a user record as listed by the API.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Position  string    `json:"position,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is one project membership.
type Member struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	User   *User  `json:"user,omitempty"`
}

// Project is a project with its members.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Members     []Member  `json:"members"`
	CreatedAt   time.Time `json:"created_at"`
}

// Access converts the project to the shape the permission evaluator reads.
// Memberships with an unknown role are dropped.
func (p *Project) Access() *access.Project {
	out := &access.Project{ID: p.ID, Status: p.Status}
	for _, m := range p.Members {
		role, ok := access.ParseProjectRole(m.Role)
		if !ok {
			continue
		}
		out.Members = append(out.Members, access.ProjectMember{UserID: m.UserID, Role: role})
	}
	return out
}

// Module is a unit of work inside a project.
type Module struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	ProjectName string    `json:"project_name,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	AssignedTo  *User     `json:"assigned_to,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	CanUpdate   bool      `json:"can_update"`
}

// Access converts the module to the shape the permission evaluator reads.
func (m *Module) Access() *access.Module {
	out := &access.Module{ID: m.ID, ProjectID: m.ProjectID}
	if m.AssignedTo != nil {
		out.AssignedTo = &access.UserRef{ID: m.AssignedTo.ID, Name: m.AssignedTo.Name}
	}
	return out
}

// Projects lists the projects visible to the current user.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Project fetches one project with its members.
func (c *Client) Project(ctx context.Context, id int64) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProjectModules lists the modules of a project.
func (c *Client) ProjectModules(ctx context.Context, projectID int64) ([]Module, error) {
	var out []Module
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/modules/projects/%d", projectID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserModules lists the modules assigned to a user, with their project names.
func (c *Client) UserModules(ctx context.Context, userID int64) ([]Module, error) {
	var out []Module
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/modules/users/%d", userID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Module fetches one module.
func (c *Client) Module(ctx context.Context, id int64) (*Module, error) {
	var out Module
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/modules/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type progressRequest struct {
	Progress int    `json:"progress"`
	Notes    string `json:"notes,omitempty"`
}

// UpdateModuleProgress sets a module's progress (0-100).
func (c *Client) UpdateModuleProgress(ctx context.Context, id int64, progress int, notes string) (*Module, error) {
	var out Module
	body := progressRequest{Progress: progress, Notes: notes}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/modules/%d/progress", id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Users lists all users. Requires the view_users permission.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserUpdate lists the user fields to change. Nil fields are left alone; an
// empty email or position clears it.
type UserUpdate struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Position *string `json:"position,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// UpdateUser changes a user. Requires the manage_users permission.
func (c *Client) UpdateUser(ctx context.Context, id int64, changes UserUpdate) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/users/%d", id), changes, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
