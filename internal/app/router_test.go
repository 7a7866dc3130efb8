package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/auth"
	"github.com/projtrack/projtrack/internal/observability"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
	_ "github.com/projtrack/projtrack/testing"
)

type memAuthRepo struct {
	users    []auth.User
	sessions map[string]int64
}

func (m *memAuthRepo) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	for i := range m.users {
		if m.users[i].Username == username {
			return &m.users[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memAuthRepo) FindByName(_ context.Context, name string) ([]auth.User, error) {
	var out []auth.User
	for _, u := range m.users {
		if u.Name == name {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memAuthRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	for i := range m.users {
		if m.users[i].ID == id {
			return &m.users[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memAuthRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	m.sessions[id] = userID
	return nil
}

func (m *memAuthRepo) DeleteSession(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *memAuthRepo) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &memAuthRepo{
		users: []auth.User{
			{ID: 1, Name: "Ana", Username: "ana", Role: access.RoleMember, PasswordHash: string(hash)},
		},
		sessions: map[string]int64{},
	}

	metrics := observability.NewMetrics()
	sessions := shared.NewSessionManager(client, "projtrack_session", time.Hour, false)
	authService := auth.NewService(repo)
	rbacService := rbac.NewService(metrics, nil)
	rbacMiddleware := rbac.Middleware{Service: rbacService}

	return NewRouter(RouterParams{
		Config:             &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimit: 1000},
		SessionManager:     sessions,
		AuthService:        authService,
		AuthHandler:        auth.NewHandler(nil, authService, sessions),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacService, rbacMiddleware),
		Metrics:            metrics,
	})
}

func serve(t *testing.T, h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rr := serve(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = serve(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `projtrack_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	rr := serve(t, newTestRouter(t), http.MethodGet, "/api/nowhere", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"success":false,"message":"route not found"}`, rr.Body.String())
}

func TestProtectedRoutesNeedLogin(t *testing.T) {
	rr := serve(t, newTestRouter(t), http.MethodGet, "/api/permissions", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies(), "anonymous requests get no session cookie")
}

func TestFormPostRejected(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("username=ana&password=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestLoginThenPermissions(t *testing.T) {
	router := newTestRouter(t)

	rr := serve(t, router, http.MethodPost, "/api/auth/login", `{"username":"ana","password":"secret-pass"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "projtrack_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	rr = serve(t, router, http.MethodGet, "/api/permissions", "", cookies...)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Role        string   `json:"role"`
			Permissions []string `json:"permissions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "member", body.Data.Role)
	assert.Contains(t, body.Data.Permissions, "update_own_modules")
	assert.NotContains(t, body.Data.Permissions, "manage_users")

	rr = serve(t, router, http.MethodGet, "/api/permissions/table", "", cookies...)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, router, http.MethodPost, "/api/auth/logout", "", cookies...)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, router, http.MethodGet, "/api/permissions", "", cookies...)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
