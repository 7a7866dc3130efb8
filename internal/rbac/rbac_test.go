package rbac_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
	_ "github.com/projtrack/projtrack/testing"
)

type decision struct {
	check, key string
	allowed    bool
}

type recorder struct{ got []decision }

func (r *recorder) RecordAuthzDecision(check, key string, allowed bool) {
	r.got = append(r.got, decision{check, key, allowed})
}

func withIdentity(ident *access.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ident != nil {
				r = r.WithContext(shared.ContextWithIdentity(r.Context(), ident))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func router(ident *access.Identity, svc *rbac.Service) http.Handler {
	mw := rbac.Middleware{Service: svc}
	r := chi.NewRouter()
	r.Use(withIdentity(ident))
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	r.With(mw.RequireAny(access.PermViewUsers, access.PermAccessDashboard)).Get("/any", ok)
	r.With(mw.RequireAll(access.PermViewUsers, access.PermAccessDashboard)).Get("/all", ok)
	r.Route("/permissions", rbac.NewPermissionsHandler(svc, mw).MountRoutes)
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRequireAnyAndAll(t *testing.T) {
	member := &access.Identity{ID: 2, Role: access.RoleMember}
	manager := &access.Identity{ID: 1, Role: access.RoleManager}

	tests := []struct {
		name  string
		ident *access.Identity
		path  string
		want  int
	}{
		{"anonymous any", nil, "/any", http.StatusUnauthorized},
		{"member any", member, "/any", http.StatusNoContent},
		{"member all", member, "/all", http.StatusForbidden},
		{"manager all", manager, "/all", http.StatusNoContent},
		{"unknown role", &access.Identity{ID: 3, Role: "guest"}, "/any", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, router(tc.ident, rbac.NewService(nil, nil)), tc.path)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestDeniedEnvelope(t *testing.T) {
	rec := get(t, router(&access.Identity{ID: 2, Role: access.RoleMember}, rbac.NewService(nil, nil)), "/all")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "permission denied", body["message"])
}

func TestDecisionsAreRecorded(t *testing.T) {
	rec := &recorder{}
	svc := rbac.NewService(rec, nil)
	member := &access.Identity{ID: 2, Role: access.RoleMember}
	project := &access.Project{ID: 1, Members: []access.ProjectMember{{UserID: 2, Role: access.ProjectRoleMember}}}

	assert.False(t, svc.Allow(member, access.PermManageUsers))
	assert.True(t, svc.AllowProject(member, project, access.ActionViewProject))
	assert.False(t, svc.AllowProject(member, project, access.ActionEditProject))
	module := &access.Module{ID: 4, ProjectID: 1, AssignedTo: &access.UserRef{ID: 2}}
	assert.True(t, svc.AllowModule(member, module, project, access.ActionUpdateModule))

	assert.Equal(t, []decision{
		{rbac.CheckGlobal, "manage_users", false},
		{rbac.CheckProject, "view_project", true},
		{rbac.CheckProject, "edit_project", false},
		{rbac.CheckModule, "update_module", true},
	}, rec.got)
}

func TestPermissionsEndpoints(t *testing.T) {
	svc := rbac.NewService(nil, nil)

	rec := get(t, router(&access.Identity{ID: 2, Role: access.RoleMember}, svc), "/permissions/")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			Role        string   `json:"role"`
			Permissions []string `json:"permissions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "member", body.Data.Role)
	assert.Contains(t, body.Data.Permissions, "access_dashboard")
	assert.NotContains(t, body.Data.Permissions, "manage_users")

	rec = get(t, router(&access.Identity{ID: 2, Role: access.RoleMember}, svc), "/permissions/table")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(t, router(&access.Identity{ID: 1, Role: access.RoleManager}, svc), "/permissions/table")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"permission":"view_users"`)
}
