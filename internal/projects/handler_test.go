package projects_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/projects"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
	_ "github.com/projtrack/projtrack/testing"
)

type memRepo struct {
	nextID   int64
	projects map[int64]*projects.Project
}

func newMemRepo(seed ...projects.Project) *memRepo {
	r := &memRepo{projects: map[int64]*projects.Project{}}
	for i := range seed {
		p := seed[i]
		r.projects[p.ID] = &p
		if p.ID > r.nextID {
			r.nextID = p.ID
		}
	}
	return r
}

func (r *memRepo) sorted() []projects.Project {
	out := make([]projects.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) List(ctx context.Context) ([]projects.Project, error) { return r.sorted(), nil }

func (r *memRepo) ListForUser(ctx context.Context, userID int64) ([]projects.Project, error) {
	var out []projects.Project
	for _, p := range r.sorted() {
		for _, m := range p.Members {
			if m.UserID == userID {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (r *memRepo) Get(ctx context.Context, id int64) (*projects.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	cp.Members = append([]projects.Member(nil), p.Members...)
	return &cp, nil
}

func (r *memRepo) Create(ctx context.Context, in projects.NewProject) (*projects.Project, error) {
	r.nextID++
	p := &projects.Project{ID: r.nextID, Name: in.Name, Description: in.Description, Status: in.Status, StartDate: in.StartDate, EndDate: in.EndDate}
	for _, m := range in.Members {
		p.Members = append(p.Members, projects.Member{UserID: m.UserID, Role: m.Role})
	}
	r.projects[p.ID] = p
	return r.Get(ctx, p.ID)
}

func (r *memRepo) Update(ctx context.Context, id int64, ch projects.Changes) error {
	p, ok := r.projects[id]
	if !ok {
		return shared.ErrNotFound
	}
	if ch.Name != nil {
		p.Name = *ch.Name
	}
	if ch.Status != nil {
		p.Status = *ch.Status
	}
	if ch.StartDate != nil || ch.ClearStartDate {
		p.StartDate = ch.StartDate
	}
	if ch.EndDate != nil || ch.ClearEndDate {
		p.EndDate = ch.EndDate
	}
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.projects[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.projects, id)
	return nil
}

func (r *memRepo) AddMember(ctx context.Context, projectID, userID int64, role access.ProjectRole) error {
	p := r.projects[projectID]
	for _, m := range p.Members {
		if m.UserID == userID {
			return fmt.Errorf("%w: user is already a member of this project", shared.ErrConflict)
		}
	}
	p.Members = append(p.Members, projects.Member{UserID: userID, Role: role})
	return nil
}

func (r *memRepo) RemoveMember(ctx context.Context, projectID, userID int64) error {
	p := r.projects[projectID]
	for i, m := range p.Members {
		if m.UserID == userID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memRepo) SetMemberRole(ctx context.Context, projectID, userID int64, role access.ProjectRole) error {
	p := r.projects[projectID]
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			p.Members[i].Role = role
			return nil
		}
	}
	return shared.ErrNotFound
}

var (
	manager = &access.Identity{ID: 1, Name: "Mia", Role: access.RoleManager}
	leader  = &access.Identity{ID: 2, Name: "Lee", Role: access.RoleMember}
	member  = &access.Identity{ID: 3, Name: "Noor", Role: access.RoleMember}
	outside = &access.Identity{ID: 4, Name: "Omar", Role: access.RoleMember}
)

func seed() *memRepo {
	return newMemRepo(
		projects.Project{ID: 1, Name: "Portal", Status: projects.StatusProjectImplementation, Members: []projects.Member{
			{UserID: 2, Role: access.ProjectRoleLeader},
			{UserID: 3, Role: access.ProjectRoleMember},
		}},
		projects.Project{ID: 2, Name: "Archive", Status: projects.StatusInitialContact},
	)
}

func server(repo projects.Repository, ident *access.Identity) http.Handler {
	authz := rbac.NewService(nil, nil)
	h := projects.NewHandler(nil, projects.NewService(repo, authz, nil), rbac.Middleware{Service: authz})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithIdentity(req.Context(), ident)))
		})
	})
	r.Route("/projects", h.MountRoutes)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestListIsScopedByMembership(t *testing.T) {
	repo := seed()

	_, env := call(t, server(repo, manager), http.MethodGet, "/projects/", "")
	var all []projects.Project
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)

	_, env = call(t, server(repo, member), http.MethodGet, "/projects/", "")
	var mine []projects.Project
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "Portal", mine[0].Name)

	code, env := call(t, server(repo, outside), http.MethodGet, "/projects/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestGetRequiresMembership(t *testing.T) {
	repo := seed()

	code, _ := call(t, server(repo, member), http.MethodGet, "/projects/1", "")
	assert.Equal(t, http.StatusOK, code)

	code, env := call(t, server(repo, outside), http.MethodGet, "/projects/1", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "permission denied", env.Message)

	code, _ = call(t, server(repo, manager), http.MethodGet, "/projects/99", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, server(repo, manager), http.MethodGet, "/projects/abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateProject(t *testing.T) {
	repo := seed()
	body := `{"name":"  CRM  ","start_date":"2026-01-05","end_date":"2026-03-01","members":[{"user_id":2,"role":"leader"},{"user_id":3}]}`

	code, _ := call(t, server(repo, leader), http.MethodPost, "/projects/", body)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := call(t, server(repo, manager), http.MethodPost, "/projects/", body)
	require.Equal(t, http.StatusCreated, code, env.Message)
	var created projects.Project
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "CRM", created.Name)
	assert.Equal(t, projects.StatusInitialContact, created.Status)
	require.Len(t, created.Members, 2)
	assert.Equal(t, access.ProjectRoleMember, created.Members[1].Role)
}

func TestCreateProjectValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"description":"x"}`},
		{"bad status", `{"name":"x","status":"planning"}`},
		{"bad date", `{"name":"x","start_date":"01/02/2026"}`},
		{"dates reversed", `{"name":"x","start_date":"2026-03-01","end_date":"2026-01-01"}`},
		{"bad member role", `{"name":"x","members":[{"user_id":2,"role":"owner"}]}`},
		{"unknown field", `{"name":"x","priority":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, env := call(t, server(seed(), manager), http.MethodPost, "/projects/", tc.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, env.Success)
		})
	}

	code, _ := call(t, server(seed(), manager), http.MethodPost, "/projects/", `{"name":"x","members":[{"user_id":2},{"user_id":2}]}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestUpdateIsLeaderOnly(t *testing.T) {
	repo := seed()

	code, _ := call(t, server(repo, member), http.MethodPut, "/projects/1", `{"name":"Renamed"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := call(t, server(repo, leader), http.MethodPut, "/projects/1", `{"name":"Renamed","status":"project_acceptance"}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "Renamed", repo.projects[1].Name)
	assert.Equal(t, projects.StatusProjectAcceptance, repo.projects[1].Status)
}

func TestUpdateDates(t *testing.T) {
	repo := seed()

	code, env := call(t, server(repo, leader), http.MethodPut, "/projects/1", `{"start_date":"2026-03-01","end_date":"2026-06-30"}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	require.NotNil(t, repo.projects[1].StartDate)
	assert.Equal(t, "2026-03-01", repo.projects[1].StartDate.Format(time.DateOnly))

	code, env = call(t, server(repo, leader), http.MethodPut, "/projects/1", `{"end_date":"2026-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, code, env.Message)

	code, env = call(t, server(repo, leader), http.MethodPut, "/projects/1", `{"start_date":""}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Nil(t, repo.projects[1].StartDate)
	require.NotNil(t, repo.projects[1].EndDate)
	assert.Equal(t, "2026-06-30", repo.projects[1].EndDate.Format(time.DateOnly))

	code, _ = call(t, server(repo, leader), http.MethodPut, "/projects/1", `{"name":"Portal v2"}`)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, repo.projects[1].EndDate)
}

func TestDeleteRequiresManager(t *testing.T) {
	repo := seed()

	code, _ := call(t, server(repo, leader), http.MethodDelete, "/projects/1", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, server(repo, manager), http.MethodDelete, "/projects/1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, repo.projects, int64(1))
}

func TestMemberManagement(t *testing.T) {
	repo := seed()

	code, _ := call(t, server(repo, member), http.MethodPost, "/projects/1/members", `{"user_id":4}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, server(repo, leader), http.MethodPost, "/projects/1/members", `{"user_id":4,"role":"member"}`)
	require.Equal(t, http.StatusCreated, code)

	code, env := call(t, server(repo, leader), http.MethodPost, "/projects/1/members", `{"user_id":4}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, env.Message, "already a member")

	code, _ = call(t, server(repo, leader), http.MethodPut, "/projects/1/members/4/role", `{"role":"owner"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, server(repo, leader), http.MethodPut, "/projects/1/members/4/role", `{"role":"leader"}`)
	require.Equal(t, http.StatusOK, code)
	project, _ := repo.Get(context.Background(), 1)
	m, ok := project.Access().Member(4)
	require.True(t, ok)
	assert.Equal(t, access.ProjectRoleLeader, m.Role)

	// The promoted user can now edit; the old plain member still cannot.
	code, _ = call(t, server(repo, outside), http.MethodPut, "/projects/1", `{"name":"By Omar"}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, server(repo, leader), http.MethodDelete, "/projects/1/members/4", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, server(repo, leader), http.MethodDelete, "/projects/1/members/4", "")
	assert.Equal(t, http.StatusNotFound, code)
}
