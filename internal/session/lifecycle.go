package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/projtrack/projtrack/internal/access"
)

// DefaultRequestTimeout bounds every backend round-trip.
const DefaultRequestTimeout = 10 * time.Second

// Backend is the slice of the REST API the lifecycle talks to.
type Backend interface {
	Login(ctx context.Context, username, password string) (*access.Identity, error)
	Logout(ctx context.Context) error
	// Check validates the current session. A negative answer is reported as
	// authenticated == false with a nil error.
	Check(ctx context.Context) (authenticated bool, identity *access.Identity, err error)
}

// Lifecycle drives login, logout, session checks and restore, and is the
// only writer of its Context.
//
// Login, Logout and every clearing of local state start a new generation. A
// session check that was started in an older generation writes nothing, so
// a slow check cannot undo a later logout or login.
type Lifecycle struct {
	backend Backend
	store   Store
	ident   *Context
	logger  *slog.Logger
	timeout time.Duration

	mu  sync.Mutex
	gen uint64
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithLogger sets the logger used for swallowed errors.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout. Zero or negative keeps the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(l *Lifecycle) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithContext makes the lifecycle write into an existing identity context.
func WithContext(c *Context) Option {
	return func(l *Lifecycle) {
		if c != nil {
			l.ident = c
		}
	}
}

// NewLifecycle builds a Lifecycle over backend and store.
func NewLifecycle(backend Backend, store Store, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		backend: backend,
		store:   store,
		ident:   NewContext(),
		logger:  slog.Default(),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Context returns the identity context this lifecycle writes.
func (l *Lifecycle) Context() *Context {
	return l.ident
}

// Login authenticates with the backend. On failure the identity is left as
// it was and an *AuthenticationError is returned.
func (l *Lifecycle) Login(ctx context.Context, username, password string) (*access.Identity, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ident, err := l.backend.Login(callCtx, username, password)
	if err != nil {
		l.logger.Warn("login failed", slog.String("username", username), slog.Any("error", err))
		return nil, loginFailure(err)
	}
	if err := validIdentity(ident); err != nil {
		l.logger.Warn("login returned unusable user", slog.Any("error", err))
		return nil, &AuthenticationError{Message: defaultLoginMessage, Err: err}
	}

	l.mu.Lock()
	l.gen++
	l.persist(ctx, *ident)
	l.ident.set(StateVerified, *ident)
	l.mu.Unlock()
	out := *ident
	return &out, nil
}

// Logout tells the backend, then clears local state regardless of the outcome.
func (l *Lifecycle) Logout(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.backend.Logout(callCtx); err != nil {
		l.logger.Warn("logout request failed", slog.Any("error", err))
	}
	l.Invalidate(ctx)
}

// Invalidate drops the local identity without telling the backend. Used when
// the backend has already rejected the session.
func (l *Lifecycle) Invalidate(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forget(ctx)
}

// CheckAuth revalidates the session with the backend. Any negative answer or
// transport failure clears local state and returns false. When a login or
// logout completed while the check was in flight, the answer is stale: local
// state is left alone and the result reflects that newer state.
func (l *Lifecycle) CheckAuth(ctx context.Context) bool {
	l.mu.Lock()
	started := l.gen
	l.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	ok, ident, err := l.backend.Check(callCtx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != started {
		l.logger.Debug("discarding stale session check")
		return l.ident.Verified()
	}
	if err != nil {
		l.logger.Warn("session check failed", slog.Any("error", err))
		l.forget(ctx)
		return false
	}
	if !ok || validIdentity(ident) != nil {
		l.forget(ctx)
		return false
	}

	l.persist(ctx, *ident)
	l.ident.set(StateVerified, *ident)
	return true
}

// Restore adopts a previously persisted identity as unverified. Corrupt
// state is discarded. It reports whether an identity was restored.
func (l *Lifecycle) Restore(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, ok, err := l.store.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrCorruptState) {
			l.logger.Warn("discarding persisted session", slog.Any("error", err))
			l.discard(ctx)
			return false
		}
		l.logger.Warn("read persisted session", slog.Any("error", err))
		return false
	}
	if !ok {
		// An absent pair or a half-written one; either way nothing may remain.
		l.discard(ctx)
		return false
	}

	var ident access.Identity
	if err := json.Unmarshal(raw, &ident); err != nil {
		l.logger.Warn("discarding persisted session", slog.Any("error", err))
		l.discard(ctx)
		return false
	}
	if err := validIdentity(&ident); err != nil {
		l.logger.Warn("discarding persisted session", slog.Any("error", err))
		l.discard(ctx)
		return false
	}

	l.ident.set(StateUnverified, ident)
	return true
}

// UpdateProfile changes the display name of the current identity and
// persists it. The trust state is kept. It returns false when anonymous.
func (l *Lifecycle) UpdateProfile(ctx context.Context, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.ident.Snapshot()
	if snap.Identity == nil {
		return false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	updated := *snap.Identity
	updated.Name = name
	l.persist(ctx, updated)
	l.ident.set(snap.State, updated)
	return true
}

func (l *Lifecycle) persist(ctx context.Context, ident access.Identity) {
	data, err := json.Marshal(ident)
	if err != nil {
		l.logger.Warn("encode session", slog.Any("error", err))
		return
	}
	if err := l.store.Put(ctx, data); err != nil {
		l.logger.Warn("persist session", slog.Any("error", err))
	}
}

func (l *Lifecycle) discard(ctx context.Context) {
	if err := l.store.Clear(ctx); err != nil {
		l.logger.Warn("clear persisted session", slog.Any("error", err))
	}
}

// forget clears local state. Callers hold mu.
func (l *Lifecycle) forget(ctx context.Context) {
	l.gen++
	l.discard(ctx)
	l.ident.clear()
}

func validIdentity(ident *access.Identity) error {
	if ident == nil {
		return errors.New("session: missing user")
	}
	if ident.ID <= 0 {
		return fmt.Errorf("session: invalid user id %d", ident.ID)
	}
	return nil
}
