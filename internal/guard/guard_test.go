package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/session"
	_ "github.com/projtrack/projtrack/testing"
)

type backend struct {
	ident   *access.Identity
	checkOK bool
	release chan struct{}
	checks  atomic.Int32
}

func (b *backend) Login(context.Context, string, string) (*access.Identity, error) {
	return b.ident, nil
}

func (b *backend) Logout(context.Context) error { return nil }

func (b *backend) Check(context.Context) (bool, *access.Identity, error) {
	b.checks.Add(1)
	if b.release != nil {
		<-b.release
	}
	if !b.checkOK {
		return false, nil, nil
	}
	return true, b.ident, nil
}

type recorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recorder) RecordGuardDecision(kind, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[kind+"/"+reason]++
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	backend   *backend
	store     *session.MemoryStore
	lifecycle *session.Lifecycle
	guard     *Guard
	recorder  *recorder
}

func newFixture(t *testing.T, cfg *Config, b *backend) *fixture {
	t.Helper()
	store := session.NewMemoryStore()
	lc := session.NewLifecycle(b, store, session.WithLogger(discard))
	rec := &recorder{}
	g, err := New(cfg, lc.Context(), lc, WithLogger(discard), WithRecorder(rec))
	require.NoError(t, err)
	return &fixture{backend: b, store: store, lifecycle: lc, guard: g, recorder: rec}
}

func member7() *access.Identity {
	return &access.Identity{ID: 7, Name: "Mia", Role: access.RoleMember}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	_, err := f.lifecycle.Login(context.Background(), "mia", "pw")
	require.NoError(t, err)
}

func (f *fixture) restore(t *testing.T) {
	t.Helper()
	other := session.NewLifecycle(&backend{ident: f.backend.ident}, f.store, session.WithLogger(discard))
	_, err := other.Login(context.Background(), "mia", "pw")
	require.NoError(t, err)
	require.True(t, f.lifecycle.Restore(context.Background()))
}

func TestLoginRouteAnonymousAllowed(t *testing.T) {
	f := newFixture(t, nil, &backend{ident: member7()})
	d := f.guard.BeforeEach(context.Background(), "/login")
	assert.Equal(t, Allow, d.Kind)
	assert.Zero(t, f.backend.checks.Load())
}

func TestLoginRouteRedirectsWhenAuthenticated(t *testing.T) {
	f := newFixture(t, nil, &backend{ident: member7()})
	f.login(t)

	d := f.guard.BeforeEach(context.Background(), "/login")
	assert.Equal(t, Decision{Kind: Redirect, To: "/", Reason: ReasonAuthenticated}, d)
}

func TestLoginRouteRedirectsRestoredIdentity(t *testing.T) {
	f := newFixture(t, nil, &backend{ident: member7()})
	f.restore(t)

	d := f.guard.BeforeEach(context.Background(), "/login?next=/projects")
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, "/", d.To)
	assert.Zero(t, f.backend.checks.Load())
}

func TestUnprotectedRouteSkipsCheck(t *testing.T) {
	f := newFixture(t, nil, &backend{})
	d := f.guard.BeforeEach(context.Background(), "/about")
	assert.Equal(t, Allow, d.Kind)
	assert.Zero(t, f.backend.checks.Load())
}

func TestRootMatchesExactly(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.IsProtected("/"))
	assert.False(t, cfg.IsProtected("/help"))
	assert.True(t, cfg.IsProtected("/projects/12"))
	assert.True(t, cfg.IsProtected("/project/12"))
	assert.True(t, cfg.Allows(access.RoleMember, "/users/3"))
	assert.False(t, cfg.Allows(access.RoleMember, "/settings"))
}

func TestProtectedAnonymousFailedCheckRedirectsToLogin(t *testing.T) {
	f := newFixture(t, nil, &backend{})

	d := f.guard.BeforeEach(context.Background(), "/projects")
	assert.Equal(t, Decision{Kind: Redirect, To: "/login", Reason: ReasonSessionInvalid}, d)
	assert.EqualValues(t, 1, f.backend.checks.Load())

	landed, ok, err := f.guard.Navigate(context.Background(), "/", "/dashboard")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/login", landed)
}

func TestProtectedRestoredIdentityIsRevalidated(t *testing.T) {
	f := newFixture(t, nil, &backend{ident: member7(), checkOK: true})
	f.restore(t)
	require.Equal(t, session.StateUnverified, f.lifecycle.Context().State())

	d := f.guard.BeforeEach(context.Background(), "/dashboard")
	assert.Equal(t, Allow, d.Kind)
	assert.EqualValues(t, 1, f.backend.checks.Load())
	assert.True(t, f.lifecycle.Context().Verified())
}

func TestProtectedRestoredIdentityRejectedByBackend(t *testing.T) {
	f := newFixture(t, nil, &backend{ident: member7(), checkOK: false})
	f.restore(t)

	d := f.guard.BeforeEach(context.Background(), "/projects/4")
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, "/login", d.To)
	assert.False(t, f.lifecycle.Context().HasIdentity())
}

func TestProtectedVerifiedSkipsCheck(t *testing.T) {
	f := newFixture(t, nil, &backend{ident: member7()})
	f.login(t)

	d := f.guard.BeforeEach(context.Background(), "/projects/3")
	assert.Equal(t, Allow, d.Kind)
	assert.Zero(t, f.backend.checks.Load())
}

func TestRoleTableRedirectsToDefault(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
login_route: /login
default_route: /
protected: [/, /dashboard, /users]
role_routes:
  member: [/, /dashboard]
`))
	require.NoError(t, err)
	f := newFixture(t, cfg, &backend{ident: member7()})
	f.login(t)

	d := f.guard.BeforeEach(context.Background(), "/users")
	assert.Equal(t, Decision{Kind: Redirect, To: "/", Reason: ReasonRoleForbidden}, d)

	landed, ok, err := f.guard.Navigate(context.Background(), "/dashboard", "/users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/", landed)
}

func TestUnknownRoleEndsInRedirectLoop(t *testing.T) {
	f := newFixture(t, nil, &backend{ident: &access.Identity{ID: 3, Name: "x"}})
	f.login(t)

	landed, ok, err := f.guard.Navigate(context.Background(), "/login", "/dashboard")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRedirectLoop))
	assert.False(t, ok)
	assert.Equal(t, "/login", landed)
}

func TestOverlappingNavigationsShareOneCheck(t *testing.T) {
	b := &backend{ident: member7(), checkOK: true, release: make(chan struct{})}
	f := newFixture(t, nil, b)
	f.restore(t)

	var wg sync.WaitGroup
	var first, second Decision
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = f.guard.BeforeEach(context.Background(), "/projects")
	}()
	require.Eventually(t, func() bool { return b.checks.Load() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		second = f.guard.BeforeEach(context.Background(), "/dashboard")
	}()
	require.Eventually(t, func() bool { return f.guard.seq.Load() == 2 }, time.Second, time.Millisecond)

	close(b.release)
	wg.Wait()

	assert.Equal(t, Decision{Kind: Superseded, Reason: ReasonNewerNavigation}, first)
	assert.Equal(t, Allow, second.Kind)
	assert.EqualValues(t, 1, b.checks.Load())
}

func TestCancelledNavigationIsSuperseded(t *testing.T) {
	b := &backend{ident: member7(), checkOK: true, release: make(chan struct{})}
	f := newFixture(t, nil, b)
	defer close(b.release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Decision, 1)
	go func() { done <- f.guard.BeforeEach(ctx, "/projects") }()
	require.Eventually(t, func() bool { return b.checks.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case d := <-done:
		assert.Equal(t, Decision{Kind: Superseded, Reason: ReasonCancelled}, d)
	case <-time.After(time.Second):
		t.Fatal("navigation did not return after cancellation")
	}

	landed, ok, err := f.guard.Navigate(ctx, "/", "/projects")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "/", landed)
}

func TestRecorderCountsDecisions(t *testing.T) {
	f := newFixture(t, nil, &backend{ident: member7()})
	f.guard.BeforeEach(context.Background(), "/login")
	f.guard.BeforeEach(context.Background(), "/users")

	assert.Equal(t, 1, f.recorder.counts["allow/"])
	assert.Equal(t, 1, f.recorder.counts["redirect/"+ReasonSessionInvalid])
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil)
	require.Error(t, err)
}

func TestNewValidatesLiteralConfig(t *testing.T) {
	cfg := &Config{
		LoginRoute:   "/login",
		DefaultRoute: "/",
		Protected:    []string{"/"},
		RoleRoutes:   map[string][]string{"member": {"/"}},
	}
	lc := session.NewLifecycle(&backend{}, session.NewMemoryStore(), session.WithLogger(discard))
	g, err := New(cfg, lc.Context(), lc)
	require.NoError(t, err)
	assert.True(t, g.Config().Allows(access.RoleMember, "/"))

	_, err = New(&Config{LoginRoute: "login"}, lc.Context(), lc)
	require.Error(t, err)
}

// notifyingChecker reports when a session check has fully completed.
type notifyingChecker struct {
	lc   *session.Lifecycle
	done chan bool
}

func (c *notifyingChecker) CheckAuth(ctx context.Context) bool {
	ok := c.lc.CheckAuth(ctx)
	c.done <- ok
	return ok
}

func TestCheckOutlivingCancelledNavigationCannotUndoLogout(t *testing.T) {
	b := &backend{ident: member7(), checkOK: true, release: make(chan struct{})}
	store := session.NewMemoryStore()
	lc := session.NewLifecycle(b, store, session.WithLogger(discard))
	checker := &notifyingChecker{lc: lc, done: make(chan bool, 1)}
	g, err := New(nil, lc.Context(), checker, WithLogger(discard))
	require.NoError(t, err)

	f := &fixture{backend: b, store: store, lifecycle: lc, guard: g}
	f.restore(t)

	ctx, cancel := context.WithCancel(context.Background())
	decided := make(chan Decision, 1)
	go func() { decided <- g.BeforeEach(ctx, "/projects") }()
	require.Eventually(t, func() bool { return b.checks.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.Equal(t, Decision{Kind: Superseded, Reason: ReasonCancelled}, <-decided)

	lc.Logout(context.Background())
	require.Equal(t, session.StateAnonymous, lc.Context().State())

	close(b.release)
	select {
	case <-checker.done:
	case <-time.After(time.Second):
		t.Fatal("session check did not finish")
	}

	assert.Equal(t, session.StateAnonymous, lc.Context().State())
	_, persisted := store.Raw(session.KeyUser)
	assert.False(t, persisted, "logout must stay in effect")
}
